package services

import (
	"context"
	"sync"
	"time"

	"golang-cart-sync/internal/models"
	"golang-cart-sync/internal/repositories"
	"golang-cart-sync/pkg/cache"
	"golang-cart-sync/pkg/cartsync"
	"golang-cart-sync/pkg/messaging"
)

type mockCartRepository struct {
	m     sync.Mutex
	carts map[string]*models.Cart
	reads int
	err   error
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{carts: make(map[string]*models.Cart)}
}

func (r *mockCartRepository) GetByUserID(_ context.Context, userID string) (*models.Cart, error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.reads++
	if r.err != nil {
		return nil, r.err
	}
	cart, ok := r.carts[userID]
	if !ok {
		return nil, repositories.ErrCartNotFound
	}
	copied := *cart
	copied.Items = append(models.CartLines{}, cart.Items...)
	return &copied, nil
}

func (r *mockCartRepository) Save(_ context.Context, cart *models.Cart) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.err != nil {
		return r.err
	}
	copied := *cart
	copied.Items = append(models.CartLines{}, cart.Items...)
	r.carts[cart.UserID] = &copied
	return nil
}

func (r *mockCartRepository) Delete(_ context.Context, userID string) error {
	r.m.Lock()
	defer r.m.Unlock()
	delete(r.carts, userID)
	return r.err
}

func (r *mockCartRepository) ListIdle(_ context.Context, before time.Time, limit int) ([]string, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var ids []string
	for userID, cart := range r.carts {
		if cart.UpdatedAt.Before(before) && len(ids) < limit {
			ids = append(ids, userID)
		}
	}
	return ids, nil
}

func (r *mockCartRepository) lines(userID string) models.CartLines {
	r.m.Lock()
	defer r.m.Unlock()
	if cart, ok := r.carts[userID]; ok {
		return cart.Items
	}
	return nil
}

type mockServiceRepository struct {
	services map[string]*models.Service
}

func (r *mockServiceRepository) GetByID(_ context.Context, id string) (*models.Service, error) {
	if s, ok := r.services[id]; ok {
		return s, nil
	}
	return nil, repositories.ErrServiceNotFound
}

func catalog() *mockServiceRepository {
	discount := 450.0
	return &mockServiceRepository{services: map[string]*models.Service{
		"s1": {Name: "Haircut", Price: 500, ImageUrls: []string{"https://cdn.example/haircut.jpg"}},
		"s2": {Name: "Facial", Price: 900, DiscountPrice: &discount},
	}}
}

type mockCache struct {
	m       sync.Mutex
	entries map[string]cartsync.CartSnapshot
	setErr  error
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]cartsync.CartSnapshot)}
}

func (c *mockCache) SetWithPrefix(_ context.Context, prefix, key string, value interface{}, _ time.Duration) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[prefix+":"+key] = *value.(*cartsync.CartSnapshot)
	return nil
}

func (c *mockCache) GetWithPrefix(_ context.Context, prefix, key string, dest interface{}) error {
	c.m.Lock()
	defer c.m.Unlock()
	snap, ok := c.entries[prefix+":"+key]
	if !ok {
		return cache.ErrCacheMiss
	}
	*dest.(*cartsync.CartSnapshot) = snap
	return nil
}

func (c *mockCache) DeleteWithPrefix(_ context.Context, prefix, key string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.entries, prefix+":"+key)
	return nil
}

func (c *mockCache) get(key string) (cartsync.CartSnapshot, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	snap, ok := c.entries[key]
	return snap, ok
}

type mockPublisher struct {
	m      sync.Mutex
	events []messaging.CartEvent
	err    error
}

func (p *mockPublisher) SendMessage(_ context.Context, _, _ string, value interface{}) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, value.(messaging.CartEvent))
	return nil
}

func (p *mockPublisher) types() []string {
	p.m.Lock()
	defer p.m.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type mockBroadcaster struct {
	m      sync.Mutex
	pushes map[string]*cartsync.CartSnapshot
}

func (b *mockBroadcaster) BroadcastSnapshot(_ context.Context, userID string, snap *cartsync.CartSnapshot) {
	b.m.Lock()
	defer b.m.Unlock()
	if b.pushes == nil {
		b.pushes = make(map[string]*cartsync.CartSnapshot)
	}
	b.pushes[userID] = snap
}
