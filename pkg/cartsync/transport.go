package cartsync

import (
	"encoding/json"
	"errors"
	"sync"
)

var (
	ErrClosed        = errors.New("cartsync: transport closed")
	ErrSendQueueFull = errors.New("cartsync: send queue full")
)

// Handler receives the raw data of a server event.
type Handler func(data json.RawMessage)

// Transport is a persistent bidirectional event channel.
type Transport interface {
	Emit(event string, payload interface{}) error
	On(event string, h Handler) (off func())
	OnReconnect(fn func()) (off func())
	Close() error
}

// listeners is the event registry shared by transport implementations.
type listeners struct {
	mu        sync.RWMutex
	nextID    uint64
	handlers  map[string]map[uint64]Handler
	reconnect map[uint64]func()
}

func newListeners() *listeners {
	return &listeners{
		handlers:  make(map[string]map[uint64]Handler),
		reconnect: make(map[uint64]func()),
	}
}

func (l *listeners) on(event string, h Handler) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	if l.handlers[event] == nil {
		l.handlers[event] = make(map[uint64]Handler)
	}
	l.handlers[event][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.handlers[event], id)
		})
	}
}

func (l *listeners) onReconnect(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.reconnect[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.reconnect, id)
		})
	}
}

// dispatch runs handlers outside the lock so they may register or detach.
func (l *listeners) dispatch(event string, data json.RawMessage) {
	l.mu.RLock()
	hs := make([]Handler, 0, len(l.handlers[event]))
	for _, h := range l.handlers[event] {
		hs = append(hs, h)
	}
	l.mu.RUnlock()

	for _, h := range hs {
		h(data)
	}
}

func (l *listeners) reconnected() {
	l.mu.RLock()
	fns := make([]func(), 0, len(l.reconnect))
	for _, fn := range l.reconnect {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func (l *listeners) count(event string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers[event])
}
