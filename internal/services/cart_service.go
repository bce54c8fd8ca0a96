package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang-cart-sync/internal/models"
	"golang-cart-sync/internal/repositories"
	"golang-cart-sync/pkg/cache"
	"golang-cart-sync/pkg/cartsync"
	"golang-cart-sync/pkg/messaging"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidUser     = errors.New("user id is required")
	ErrInvalidService  = errors.New("service id is required")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrLineNotFound    = errors.New("service is not in the cart")
)

const (
	snapshotPrefix = "cart"
	snapshotTTL    = 10 * time.Minute
)

// SnapshotCache is satisfied by *cache.RedisCache.
type SnapshotCache interface {
	SetWithPrefix(ctx context.Context, prefix, key string, value interface{}, expiration time.Duration) error
	GetWithPrefix(ctx context.Context, prefix, key string, dest interface{}) error
	DeleteWithPrefix(ctx context.Context, prefix, key string) error
}

// EventPublisher is satisfied by *messaging.KafkaProducer.
type EventPublisher interface {
	SendMessage(ctx context.Context, topic, key string, value interface{}) error
}

// CartService owns the authoritative carts. Every mutation returns the
// full snapshot that has to be pushed to the user's room.
type CartService struct {
	cartRepo    repositories.CartRepository
	serviceRepo repositories.ServiceRepository
	cache       SnapshotCache
	events      EventPublisher
	eventsTopic string
	sfg         singleflight.Group
	now         func() time.Time

	locksMu sync.Mutex
	locks   map[string]*userLock
}

// userLock is shared by every caller working on one user's cart and is
// dropped from the table when the last of them releases it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewCartService wires the cart service. cache and events may be nil.
func NewCartService(
	cartRepo repositories.CartRepository,
	serviceRepo repositories.ServiceRepository,
	cache SnapshotCache,
	events EventPublisher,
	eventsTopic string,
) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		serviceRepo: serviceRepo,
		cache:       cache,
		events:      events,
		eventsTopic: eventsTopic,
		now:         time.Now,
		locks:       make(map[string]*userLock),
	}
}

// GetSnapshot reads the cart through the cache. Concurrent misses for the
// same user share one repository read.
func (s *CartService) GetSnapshot(ctx context.Context, userID string) (*cartsync.CartSnapshot, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	if s.cache != nil {
		var cached cartsync.CartSnapshot
		err := s.cache.GetWithPrefix(ctx, snapshotPrefix, userID, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logrus.WithError(err).WithField("user_id", userID).Warn("snapshot cache read failed")
		}
	}

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		defer s.lockUser(userID)()
		cart, err := s.loadCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		snap := toSnapshot(cart)
		s.cacheSnapshot(ctx, userID, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cartsync.CartSnapshot), nil
}

// AddItem adds quantity of serviceID, incrementing an existing line.
func (s *CartService) AddItem(ctx context.Context, userID, serviceID string, quantity int) (*cartsync.CartSnapshot, error) {
	if err := validate(userID, serviceID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	service, err := s.serviceRepo.GetByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	defer s.lockUser(userID)()
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if i := cart.Find(serviceID); i >= 0 {
		cart.Items[i].Quantity += quantity
		refreshLine(&cart.Items[i], service)
	} else {
		line := models.CartLine{ServiceID: serviceID, Quantity: quantity}
		refreshLine(&line, service)
		cart.Items = append(cart.Items, line)
	}

	return s.save(ctx, cart, messaging.CartItemAdded, serviceID, quantity)
}

// UpdateQuantity sets the line's quantity. Zero or less removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, serviceID string, quantity int) (*cartsync.CartSnapshot, error) {
	if err := validate(userID, serviceID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, serviceID)
	}

	defer s.lockUser(userID)()
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	i := cart.Find(serviceID)
	if i < 0 {
		return nil, ErrLineNotFound
	}
	cart.Items[i].Quantity = quantity

	return s.save(ctx, cart, messaging.CartItemUpdated, serviceID, quantity)
}

// RemoveItem drops the line. Removing an absent line returns the cart
// unchanged.
func (s *CartService) RemoveItem(ctx context.Context, userID, serviceID string) (*cartsync.CartSnapshot, error) {
	if err := validate(userID, serviceID); err != nil {
		return nil, err
	}

	defer s.lockUser(userID)()
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	i := cart.Find(serviceID)
	if i < 0 {
		return toSnapshot(cart), nil
	}
	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)

	return s.save(ctx, cart, messaging.CartItemRemoved, serviceID, 0)
}

func (s *CartService) ClearCart(ctx context.Context, userID string) (*cartsync.CartSnapshot, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	defer s.lockUser(userID)()
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.Items = models.CartLines{}

	return s.save(ctx, cart, messaging.CartCleared, "", 0)
}

// DeleteCart drops the stored cart if it was last updated before the
// given time. The check runs under the user's lock, so a cart touched
// after it was listed as idle survives. deleted is false when nothing was
// removed; the returned snapshot is empty otherwise.
func (s *CartService) DeleteCart(ctx context.Context, userID string, before time.Time) (snap *cartsync.CartSnapshot, deleted bool, err error) {
	if userID == "" {
		return nil, false, ErrInvalidUser
	}

	defer s.lockUser(userID)()
	cart, err := s.cartRepo.GetByUserID(ctx, userID)
	if errors.Is(err, repositories.ErrCartNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !cart.UpdatedAt.Before(before) {
		return nil, false, nil
	}

	if err := s.cartRepo.Delete(ctx, userID); err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		if err := s.cache.DeleteWithPrefix(ctx, snapshotPrefix, userID); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("snapshot cache invalidate failed")
		}
	}
	s.publish(ctx, messaging.CartEvent{Type: messaging.CartCleared, UserID: userID, Lines: len(cart.Items), OccurredAt: s.now()})
	return &cartsync.CartSnapshot{UserID: userID, Items: []cartsync.CartLine{}}, true, nil
}

// lockUser serializes read-modify-write cycles on one user's cart.
func (s *CartService) lockUser(userID string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, userID)
		}
		s.locksMu.Unlock()
	}
}


func (s *CartService) loadCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.cartRepo.GetByUserID(ctx, userID)
	if errors.Is(err, repositories.ErrCartNotFound) {
		now := s.now()
		return &models.Cart{UserID: userID, Items: models.CartLines{}, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *models.Cart, eventType, serviceID string, quantity int) (*cartsync.CartSnapshot, error) {
	cart.UpdatedAt = s.now()
	if err := s.cartRepo.Save(ctx, cart); err != nil {
		return nil, err
	}

	snap := toSnapshot(cart)
	s.cacheSnapshot(ctx, cart.UserID, snap)
	s.publish(ctx, messaging.CartEvent{
		Type:       eventType,
		UserID:     cart.UserID,
		ServiceID:  serviceID,
		Quantity:   quantity,
		Lines:      len(cart.Items),
		Total:      cart.Total(),
		OccurredAt: cart.UpdatedAt,
	})
	return snap, nil
}

func (s *CartService) cacheSnapshot(ctx context.Context, userID string, snap *cartsync.CartSnapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetWithPrefix(ctx, snapshotPrefix, userID, snap, snapshotTTL); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("snapshot cache write failed")
		// never leave the previous snapshot behind
		if err := s.cache.DeleteWithPrefix(ctx, snapshotPrefix, userID); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("snapshot cache invalidate failed")
		}
	}
}

// publish is best effort; the cart is already saved.
func (s *CartService) publish(ctx context.Context, event messaging.CartEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.SendMessage(ctx, s.eventsTopic, event.UserID, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user_id": event.UserID, "type": event.Type}).Warn("cart event not published")
	}
}

func validate(userID, serviceID string) error {
	if userID == "" {
		return ErrInvalidUser
	}
	if serviceID == "" {
		return ErrInvalidService
	}
	return nil
}

func refreshLine(line *models.CartLine, service *models.Service) {
	line.Name = service.Name
	line.Price = service.CurrentPrice()
	line.ImageURL = service.CoverImage()
}

func toSnapshot(cart *models.Cart) *cartsync.CartSnapshot {
	items := make([]cartsync.CartLine, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, cartsync.CartLine{
			ServiceID: line.ServiceID,
			Quantity:  line.Quantity,
			Price:     line.Price,
			Name:      line.Name,
			ImageURL:  line.ImageURL,
		})
	}
	return &cartsync.CartSnapshot{UserID: cart.UserID, Items: items}
}
