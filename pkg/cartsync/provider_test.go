package cartsync

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_CommandsDoNotTouchCart(t *testing.T) {
	tr := newFakeTransport()
	p := NewProvider(tr, ProviderOptions{})
	p.SetUser("u1")
	tr.push(t, EventCartUpdated, CartSnapshot{Items: []CartLine{{ServiceID: "s1", Quantity: 1}}})
	before := p.Cart()

	p.AddToCart("s2", 1)
	p.UpdateQuantity("s1", 4)
	p.RemoveFromCart("s1")

	assert.Equal(t, before, p.Cart())

	tr.push(t, EventCartUpdated, CartSnapshot{Items: []CartLine{{ServiceID: "s2", Quantity: 1}}})
	assert.Equal(t, []CartLine{{ServiceID: "s2", Quantity: 1}}, p.Cart())
}

func TestProvider_SignedOutSendsNothing(t *testing.T) {
	tr := newFakeTransport()
	p := NewProvider(tr, ProviderOptions{})

	assert.False(t, p.SignedIn())
	p.AddToCart("s1", 1)
	p.UpdateQuantity("s1", 2)
	p.RemoveFromCart("s1")

	assert.Empty(t, tr.sent())
}

func TestProvider_SessionsAreIsolated(t *testing.T) {
	trA := newFakeTransport()
	trB := newFakeTransport()
	a := NewProvider(trA, ProviderOptions{})
	b := NewProvider(trB, ProviderOptions{})

	a.SetUser("A")
	b.SetUser("B")
	trA.push(t, EventCartUpdated, CartSnapshot{Items: []CartLine{{ServiceID: "s1", Quantity: 3}}})

	assert.Equal(t, []CartLine{{ServiceID: "s1", Quantity: 3}}, a.Cart())
	assert.Empty(t, b.Cart())
	assert.Equal(t, "B", trB.sent()[0].Payload["userId"])
}

func TestProvider_SharedTransportKeepsCartsApart(t *testing.T) {
	tr := newFakeTransport()
	a := NewProvider(tr, ProviderOptions{})
	b := NewProvider(tr, ProviderOptions{})
	a.SetUser("A")
	b.SetUser("B")

	tr.push(t, EventCartUpdated, CartSnapshot{UserID: "A", Items: []CartLine{{ServiceID: "s1", Quantity: 3}}})

	assert.Equal(t, []CartLine{{ServiceID: "s1", Quantity: 3}}, a.Cart())
	assert.Empty(t, b.Cart())

	tr.push(t, EventCartUpdated, CartSnapshot{UserID: "B", Items: []CartLine{{ServiceID: "s2", Quantity: 1}}})

	assert.Equal(t, []CartLine{{ServiceID: "s1", Quantity: 3}}, a.Cart())
	assert.Equal(t, []CartLine{{ServiceID: "s2", Quantity: 1}}, b.Cart())
}

func TestProvider_LateSnapshotForPreviousUserIgnored(t *testing.T) {
	tr := newFakeTransport()
	p := NewProvider(tr, ProviderOptions{})
	p.SetUser("A")
	tr.push(t, EventCartUpdated, CartSnapshot{UserID: "A", Items: []CartLine{{ServiceID: "s1", Quantity: 1}}})

	p.SetUser("B")
	tr.push(t, EventCartUpdated, CartSnapshot{UserID: "A", Items: []CartLine{{ServiceID: "s1", Quantity: 2}}})
	assert.Empty(t, p.Cart())

	p.SetUser("")
	tr.push(t, EventCartUpdated, CartSnapshot{UserID: "B", Items: []CartLine{{ServiceID: "s2", Quantity: 1}}})
	assert.Empty(t, p.Cart())
}

func TestProvider_ConcurrentSetUser(t *testing.T) {
	tr := newFakeTransport()
	p := NewProvider(tr, ProviderOptions{})
	p.SetUser("seed")
	tr.push(t, EventCartUpdated, CartSnapshot{UserID: "seed", Items: []CartLine{{ServiceID: "s1", Quantity: 1}}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.SetUser(fmt.Sprintf("u%d", i%2))
		}(i)
	}
	wg.Wait()

	final := p.UserID()
	require.Contains(t, []string{"u0", "u1"}, final)
	assert.Empty(t, p.Cart())

	// The reconciler and the room agree on the owner.
	tr.push(t, EventCartUpdated, CartSnapshot{UserID: final, Items: []CartLine{{ServiceID: "s2", Quantity: 1}}})
	assert.Equal(t, []CartLine{{ServiceID: "s2", Quantity: 1}}, p.Cart())
}

func TestProvider_EndToEndScenario(t *testing.T) {
	tr := newFakeTransport()
	p := NewProvider(tr, ProviderOptions{})

	p.SetUser("u1")
	tr.push(t, EventCartUpdated, map[string]interface{}{
		"items": []map[string]interface{}{{"serviceId": "s1", "quantity": 2, "price": 500}},
	})
	assert.Equal(t, []CartLine{{ServiceID: "s1", Quantity: 2, Price: 500}}, p.Cart())

	p.RemoveFromCart("s1")
	sent := tr.sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, emitted{
		Event:   EventRemoveFromCart,
		Payload: map[string]interface{}{"userId": "u1", "serviceId": "s1"},
	}, sent[len(sent)-1])

	tr.push(t, EventCartUpdated, CartSnapshot{Items: []CartLine{}})
	assert.Equal(t, []CartLine{}, p.Cart())
}

func TestProvider_UserSwitchClearsCart(t *testing.T) {
	tr := newFakeTransport()
	p := NewProvider(tr, ProviderOptions{})
	p.SetUser("u1")
	tr.push(t, EventCartUpdated, CartSnapshot{Items: []CartLine{{ServiceID: "s1", Quantity: 1}}})

	p.SetUser("u2")

	assert.Empty(t, p.Cart())
	assert.Equal(t, "u2", p.UserID())
}

func TestProvider_SubscribersSeeSharedState(t *testing.T) {
	tr := newFakeTransport()
	p := NewProvider(tr, ProviderOptions{})
	p.SetUser("u1")

	var first, second []CartLine
	p.Subscribe(func(items []CartLine) { first = items })
	p.Subscribe(func(items []CartLine) { second = items })

	tr.push(t, EventCartUpdated, CartSnapshot{Items: []CartLine{{ServiceID: "s1", Quantity: 2}}})

	assert.Equal(t, p.Cart(), first)
	assert.Equal(t, p.Cart(), second)
}

func TestProvider_OnError(t *testing.T) {
	tr := newFakeTransport()
	var messages []string
	p := NewProvider(tr, ProviderOptions{OnError: func(msg string) { messages = append(messages, msg) }})
	p.SetUser("u1")

	tr.push(t, EventCartError, "invalid service id")

	assert.Equal(t, []string{"invalid service id"}, messages)
	assert.Empty(t, p.Cart())
}

func TestProvider_CloseDetachesButKeepsTransport(t *testing.T) {
	tr := newFakeTransport()
	p := NewProvider(tr, ProviderOptions{})
	p.SetUser("u1")

	p.Close()
	p.Close()
	tr.push(t, EventCartUpdated, CartSnapshot{Items: []CartLine{{ServiceID: "s1", Quantity: 1}}})

	assert.Empty(t, p.Cart())
	assert.Equal(t, 0, tr.count(EventCartUpdated))
	assert.Equal(t, 0, tr.count(EventCartAck))
	assert.False(t, tr.closed)
}
