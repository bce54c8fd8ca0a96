package services

import (
	"context"
	"encoding/json"
	"fmt"

	"golang-cart-sync/pkg/cartsync"
	"golang-cart-sync/pkg/messaging"

	"github.com/sirupsen/logrus"
)

// SnapshotBroadcaster pushes a snapshot to every connection in a room.
type SnapshotBroadcaster interface {
	BroadcastSnapshot(ctx context.Context, userID string, snap *cartsync.CartSnapshot)
}

// BookingListener empties a user's cart once a booking has been created
// from it and pushes the empty cart to the user's room.
type BookingListener struct {
	carts       *CartService
	broadcaster SnapshotBroadcaster
}

func NewBookingListener(carts *CartService, broadcaster SnapshotBroadcaster) *BookingListener {
	return &BookingListener{carts: carts, broadcaster: broadcaster}
}

// HandleMessage is a messaging.KafkaConsumer handler.
func (l *BookingListener) HandleMessage(ctx context.Context, value []byte) error {
	var event messaging.BookingEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode booking event: %w", err)
	}
	if event.Type != messaging.BookingCreated {
		return nil
	}
	if event.UserID == "" {
		return fmt.Errorf("booking %s has no user_id", event.BookingID)
	}

	snap, err := l.carts.ClearCart(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("clear cart for booking %s: %w", event.BookingID, err)
	}

	logrus.WithFields(logrus.Fields{"user_id": event.UserID, "booking_id": event.BookingID}).Info("cart cleared after booking")
	l.broadcaster.BroadcastSnapshot(ctx, event.UserID, snap)
	return nil
}
