package cartsync

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type emitted struct {
	Event   string
	Payload map[string]interface{}
}

type fakeTransport struct {
	*listeners

	m      sync.Mutex
	emits  []emitted
	err    error
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{listeners: newListeners()}
}

func (f *fakeTransport) Emit(event string, payload interface{}) error {
	f.m.Lock()
	defer f.m.Unlock()
	if f.err != nil {
		return f.err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	f.emits = append(f.emits, emitted{Event: event, Payload: decoded})
	return nil
}

func (f *fakeTransport) On(event string, h Handler) func() {
	return f.listeners.on(event, h)
}

func (f *fakeTransport) OnReconnect(fn func()) func() {
	return f.listeners.onReconnect(fn)
}

func (f *fakeTransport) Close() error {
	f.m.Lock()
	defer f.m.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sent() []emitted {
	f.m.Lock()
	defer f.m.Unlock()
	out := make([]emitted, len(f.emits))
	copy(out, f.emits)
	return out
}

func (f *fakeTransport) reset() {
	f.m.Lock()
	defer f.m.Unlock()
	f.emits = nil
}

// push simulates a server event.
func (f *fakeTransport) push(t *testing.T, event string, payload interface{}) {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	f.listeners.dispatch(event, b)
}
