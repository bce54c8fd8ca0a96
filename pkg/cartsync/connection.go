package cartsync

import (
	"errors"
	"sync"
)

var ErrNotConnected = errors.New("cartsync: not connected")

// DialFunc opens a Transport to serverURL.
type DialFunc func(serverURL string, opts Options) (Transport, error)

// Manager owns at most one Transport. Connect dials once; later calls
// hand back the same Transport until Shutdown.
type Manager struct {
	mu        sync.Mutex
	dial      DialFunc
	serverURL string
	transport Transport
}

func NewManager(dial DialFunc) *Manager {
	if dial == nil {
		dial = DialWebSocket
	}
	return &Manager{dial: dial}
}

// Connect returns the managed Transport, dialing it on first use. A
// second call with a different URL still returns the existing connection.
func (m *Manager) Connect(serverURL string, opts Options) (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transport != nil {
		return m.transport, nil
	}

	t, err := m.dial(serverURL, opts)
	if err != nil {
		return nil, err
	}
	m.serverURL = serverURL
	m.transport = t
	return t, nil
}

func (m *Manager) Transport() (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport == nil {
		return nil, ErrNotConnected
	}
	return m.transport, nil
}

func (m *Manager) ServerURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverURL
}

// Shutdown closes the managed Transport. A later Connect dials again.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.serverURL = ""
	m.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.Close()
}

var defaultManager = NewManager(DialWebSocket)

// Init connects the process-wide Transport.
func Init(serverURL string, opts Options) (Transport, error) {
	return defaultManager.Connect(serverURL, opts)
}

// Default returns the process-wide Transport created by Init.
func Default() (Transport, error) {
	return defaultManager.Transport()
}

// Shutdown closes the process-wide Transport.
func Shutdown() error {
	return defaultManager.Shutdown()
}
