package cartsync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ProviderOptions tune a Provider. The zero value is usable.
type ProviderOptions struct {
	// OnError receives cartError messages, e.g. to show a notification.
	OnError    func(message string)
	AckTimeout time.Duration
	Logger     logrus.FieldLogger
}

// Provider is the one cart every consumer in a session shares. Commands
// go out through the dispatcher; Cart only changes when the server
// pushes a snapshot.
type Provider struct {
	room       *RoomController
	dispatcher *Dispatcher
	store      *Store
	reconciler *Reconciler

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewProvider attaches a session to t. Providers sharing one Transport
// must sign in the same user: the server keeps each connection in a
// single room, and a provider ignores snapshots tagged for anyone other
// than its own user. Dial one Transport per user otherwise.
func NewProvider(t Transport, opts ProviderOptions) *Provider {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	store := NewStore()
	reconciler := NewReconciler(t, store, opts.OnError, log)
	reconciler.SetOwner("")
	return &Provider{
		room:       NewRoomController(t, log),
		dispatcher: NewDispatcher(t, opts.AckTimeout, log),
		store:      store,
		reconciler: reconciler,
	}
}

// SetUser switches the session identity. A different identity clears the
// local cart before joining the new room; an empty one leaves it empty.
func (p *Provider) SetUser(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconciler.SetOwner(userID)
	p.room.SetUser(userID)
}

func (p *Provider) UserID() string {
	return p.room.UserID()
}

// SignedIn reports whether commands will be sent. Callers prompt for
// sign-in when it is false.
func (p *Provider) SignedIn() bool {
	return p.room.UserID() != ""
}

func (p *Provider) Cart() []CartLine {
	return p.store.Cart()
}

func (p *Provider) Subscribe(fn func([]CartLine)) (unsubscribe func()) {
	return p.store.Subscribe(fn)
}

func (p *Provider) AddToCart(serviceID string, quantity int) {
	p.dispatcher.AddItem(p.UserID(), serviceID, quantity)
}

func (p *Provider) UpdateQuantity(serviceID string, quantity int) {
	p.dispatcher.UpdateQuantity(p.UserID(), serviceID, quantity)
}

func (p *Provider) RemoveFromCart(serviceID string) {
	p.dispatcher.RemoveItem(p.UserID(), serviceID)
}

func (p *Provider) AddToCartAndWait(ctx context.Context, serviceID string, quantity int) error {
	return p.dispatcher.AddItemAndWait(ctx, p.UserID(), serviceID, quantity)
}

func (p *Provider) UpdateQuantityAndWait(ctx context.Context, serviceID string, quantity int) error {
	return p.dispatcher.UpdateQuantityAndWait(ctx, p.UserID(), serviceID, quantity)
}

func (p *Provider) RemoveFromCartAndWait(ctx context.Context, serviceID string) error {
	return p.dispatcher.RemoveItemAndWait(ctx, p.UserID(), serviceID)
}

// Close detaches the provider's listeners. The Transport stays open.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		p.reconciler.Detach()
		p.dispatcher.Close()
		p.room.Close()
	})
}
