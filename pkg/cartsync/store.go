package cartsync

import (
	"slices"
	"sync"
)

// Store holds the last cart snapshot pushed by the server.
type Store struct {
	mu      sync.RWMutex
	items   []CartLine
	version uint64

	subMu  sync.Mutex
	nextID uint64
	subs   map[uint64]func([]CartLine)
}

func NewStore() *Store {
	return &Store{subs: make(map[uint64]func([]CartLine))}
}

// Cart returns a copy of the current lines; never nil.
func (s *Store) Cart() []CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLines(s.items)
}

// Version counts applied changes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// replace swaps in items wholesale. Equal contents leave the store and
// its subscribers untouched.
func (s *Store) replace(items []CartLine) bool {
	next := cloneLines(items)

	s.mu.Lock()
	if slices.Equal(s.items, next) {
		s.mu.Unlock()
		return false
	}
	s.items = next
	s.version++
	s.mu.Unlock()

	s.notify(next)
	return true
}

// Subscribe calls fn with every new cart until the returned func runs.
func (s *Store) Subscribe(fn func([]CartLine)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(items []CartLine) {
	s.subMu.Lock()
	fns := make([]func([]CartLine), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(cloneLines(items))
	}
}

func cloneLines(items []CartLine) []CartLine {
	out := make([]CartLine, len(items))
	copy(out, items)
	return out
}
