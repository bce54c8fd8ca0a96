package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	m        sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.m.Lock()
	defer f.m.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.m.Lock()
	defer f.m.Unlock()
	f.closed = true
	return nil
}

func TestSendMessage_WritesKeyedJSON(t *testing.T) {
	writers := map[string]*fakeWriter{}
	kp := NewKafkaProducerWithWriter(func(topic string) MessageWriter {
		w := &fakeWriter{}
		writers[topic] = w
		return w
	})

	err := kp.SendMessage(context.Background(), "cart-events", "u1", CartEvent{Type: CartItemAdded, UserID: "u1", ServiceID: "s1", Quantity: 2})
	require.NoError(t, err)
	err = kp.SendMessage(context.Background(), "cart-events", "u1", CartEvent{Type: CartCleared, UserID: "u1"})
	require.NoError(t, err)

	require.Len(t, writers, 1)
	w := writers["cart-events"]
	require.Len(t, w.messages, 2)
	assert.Equal(t, "u1", string(w.messages[0].Key))

	var ev CartEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &ev))
	assert.Equal(t, CartItemAdded, ev.Type)
	assert.Equal(t, 2, ev.Quantity)

	kp.Close()
	assert.True(t, w.closed)
}

func TestSendMessage_BreakerOpensAfterFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	kp := NewKafkaProducerWithWriter(func(string) MessageWriter { return w })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := kp.SendMessage(ctx, "cart-events", "u1", CartEvent{Type: CartItemAdded})
		require.ErrorContains(t, err, "broker down")
	}

	err := kp.SendMessage(ctx, "cart-events", "u1", CartEvent{Type: CartItemAdded})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
