package cartsync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ConnectIsIdempotent(t *testing.T) {
	dials := 0
	m := NewManager(func(string, Options) (Transport, error) {
		dials++
		return newFakeTransport(), nil
	})

	first, err := m.Connect("ws://cart.local/ws", Options{})
	require.NoError(t, err)
	second, err := m.Connect("ws://cart.local/ws", Options{})
	require.NoError(t, err)
	third, err := m.Connect("ws://elsewhere/ws", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, dials)
	assert.Same(t, first, second)
	assert.Same(t, first, third)
	assert.Equal(t, "ws://cart.local/ws", m.ServerURL())
}

func TestManager_TransportBeforeConnect(t *testing.T) {
	m := NewManager(func(string, Options) (Transport, error) {
		return newFakeTransport(), nil
	})

	_, err := m.Transport()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestManager_DialErrorIsNotCached(t *testing.T) {
	calls := 0
	m := NewManager(func(string, Options) (Transport, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return newFakeTransport(), nil
	})

	_, err := m.Connect("ws://cart.local/ws", Options{})
	require.Error(t, err)
	tr, err := m.Connect("ws://cart.local/ws", Options{})
	require.NoError(t, err)
	assert.NotNil(t, tr)
}

func TestManager_ShutdownClosesAndAllowsReconnect(t *testing.T) {
	var created []*fakeTransport
	m := NewManager(func(string, Options) (Transport, error) {
		f := newFakeTransport()
		created = append(created, f)
		return f, nil
	})

	_, err := m.Connect("ws://cart.local/ws", Options{})
	require.NoError(t, err)
	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())

	assert.True(t, created[0].closed)
	_, err = m.Transport()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = m.Connect("ws://cart.local/ws", Options{})
	require.NoError(t, err)
	assert.Len(t, created, 2)
}
