package cartsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultQuantity is used by AddItem when quantity is zero.
const DefaultQuantity = 1

var (
	ErrNoUser     = errors.New("cartsync: no signed-in user")
	ErrAckTimeout = errors.New("cartsync: no acknowledgement from server")
)

// CommandError is a server rejection of an acknowledged command.
type CommandError struct {
	RequestID string
	Message   string
}

func (e *CommandError) Error() string {
	return "cartsync: command rejected: " + e.Message
}

// Dispatcher turns cart intents into outbound commands. It never touches
// local cart state; results arrive later as cartUpdated pushes.
type Dispatcher struct {
	transport Transport
	log       logrus.FieldLogger

	ackTimeout time.Duration
	mu         sync.Mutex
	pending    map[string]chan error
	offAck     func()
}

func NewDispatcher(t Transport, ackTimeout time.Duration, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	d := &Dispatcher{
		transport:  t,
		log:        log.WithField("component", "cartsync.dispatcher"),
		ackTimeout: ackTimeout,
		pending:    make(map[string]chan error),
	}
	d.offAck = t.On(EventCartAck, d.onAck)
	return d
}

// AddItem asks the server to add quantity of serviceID. Nothing is sent
// without a user.
func (d *Dispatcher) AddItem(userID, serviceID string, quantity int) {
	if userID == "" {
		return
	}
	d.fire(EventAddToCart, userID, itemPayload(userID, serviceID, quantity, ""))
}

// UpdateQuantity sends quantity as given; bounds are the server's concern.
func (d *Dispatcher) UpdateQuantity(userID, serviceID string, quantity int) {
	if userID == "" {
		return
	}
	d.fire(EventUpdateQuantity, userID, ItemPayload{UserID: userID, ServiceID: serviceID, Quantity: quantity})
}

func (d *Dispatcher) RemoveItem(userID, serviceID string) {
	if userID == "" {
		return
	}
	d.fire(EventRemoveFromCart, userID, RemovePayload{UserID: userID, ServiceID: serviceID})
}

func (d *Dispatcher) AddItemAndWait(ctx context.Context, userID, serviceID string, quantity int) error {
	if userID == "" {
		return ErrNoUser
	}
	return d.sendAndWait(ctx, func(id string) (string, interface{}) {
		return EventAddToCart, itemPayload(userID, serviceID, quantity, id)
	})
}

func (d *Dispatcher) UpdateQuantityAndWait(ctx context.Context, userID, serviceID string, quantity int) error {
	if userID == "" {
		return ErrNoUser
	}
	return d.sendAndWait(ctx, func(id string) (string, interface{}) {
		return EventUpdateQuantity, ItemPayload{UserID: userID, ServiceID: serviceID, Quantity: quantity, RequestID: id}
	})
}

func (d *Dispatcher) RemoveItemAndWait(ctx context.Context, userID, serviceID string) error {
	if userID == "" {
		return ErrNoUser
	}
	return d.sendAndWait(ctx, func(id string) (string, interface{}) {
		return EventRemoveFromCart, RemovePayload{UserID: userID, ServiceID: serviceID, RequestID: id}
	})
}

func itemPayload(userID, serviceID string, quantity int, requestID string) ItemPayload {
	if quantity == 0 {
		quantity = DefaultQuantity
	}
	return ItemPayload{UserID: userID, ServiceID: serviceID, Quantity: quantity, RequestID: requestID}
}

func (d *Dispatcher) fire(event, userID string, payload interface{}) {
	if err := d.transport.Emit(event, payload); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{"event": event, "user_id": userID}).Warn("command not sent")
	}
}

// sendAndWait registers a request id before emitting so an ack can never
// race ahead of its pending entry.
func (d *Dispatcher) sendAndWait(ctx context.Context, build func(requestID string) (string, interface{})) error {
	id := uuid.NewString()
	result := make(chan error, 1)

	d.mu.Lock()
	d.pending[id] = result
	d.mu.Unlock()
	defer d.forget(id)

	event, payload := build(id)
	if err := d.transport.Emit(event, payload); err != nil {
		return err
	}

	timer := time.NewTimer(d.ackTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) forget(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

func (d *Dispatcher) onAck(data json.RawMessage) {
	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil || ack.RequestID == "" {
		d.log.WithField("data", string(data)).Warn("ignoring malformed ack")
		return
	}

	d.mu.Lock()
	result, ok := d.pending[ack.RequestID]
	delete(d.pending, ack.RequestID)
	d.mu.Unlock()
	if !ok {
		return
	}

	if ack.Error != "" {
		result <- &CommandError{RequestID: ack.RequestID, Message: ack.Error}
		return
	}
	result <- nil
}

// Pending is the number of commands still waiting for an ack.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops listening for acks.
func (d *Dispatcher) Close() {
	d.offAck()
}
