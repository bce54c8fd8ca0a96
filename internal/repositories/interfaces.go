package repositories

import (
	"context"
	"errors"
	"time"

	"golang-cart-sync/internal/models"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrServiceNotFound = errors.New("service not found")
)

// CartRepository interface for PostgreSQL cart operations
type CartRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Cart, error)
	// Save inserts or replaces the user's cart
	Save(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, userID string) error
	// ListIdle returns up to limit owners of carts last updated before before
	ListIdle(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// ServiceRepository interface for MongoDB service catalog reads
type ServiceRepository interface {
	GetByID(ctx context.Context, id string) (*models.Service, error)
}
