package handlers

import (
	"context"

	"golang-cart-sync/pkg/cartsync"
)

// CartServiceInterface defines the contract for cart service
type CartServiceInterface interface {
	GetSnapshot(ctx context.Context, userID string) (*cartsync.CartSnapshot, error)
	AddItem(ctx context.Context, userID, serviceID string, quantity int) (*cartsync.CartSnapshot, error)
	UpdateQuantity(ctx context.Context, userID, serviceID string, quantity int) (*cartsync.CartSnapshot, error)
	RemoveItem(ctx context.Context, userID, serviceID string) (*cartsync.CartSnapshot, error)
	ClearCart(ctx context.Context, userID string) (*cartsync.CartSnapshot, error)
}

// RoomBroadcaster is satisfied by *hub.Hub.
type RoomBroadcaster interface {
	BroadcastSnapshot(ctx context.Context, userID string, snap *cartsync.CartSnapshot)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
