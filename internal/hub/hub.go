// Package hub keeps track of cart rooms. A room holds every connection of
// one user; snapshots broadcast to a room are fanned out to the other
// server instances through Redis pub/sub.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"golang-cart-sync/pkg/cartsync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the Redis channel room frames travel on.
const DefaultChannel = "cart-rooms"

// PubSub is satisfied by *cache.RedisCache.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler func([]byte)) error
}

type roomMessage struct {
	Origin string          `json:"origin"`
	UserID string          `json:"userId"`
	Frame  json.RawMessage `json:"frame"`
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	pubsub  PubSub
	channel string
	origin  string
}

// New creates a hub. pubsub may be nil for a single instance deployment.
func New(pubsub PubSub, channel string) *Hub {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		pubsub:  pubsub,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

// Run subscribes to the fan-out channel. It returns once the subscription
// is live; frames are delivered until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Subscribe(ctx, h.channel, h.handleRemote)
}

func (h *Hub) handleRemote(payload []byte) {
	var msg roomMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logrus.WithError(err).Warn("dropping malformed room message")
		return
	}
	if msg.Origin == h.origin {
		return
	}
	h.deliver(msg.UserID, msg.Frame)
}

// Join moves c into userID's room, leaving any room it was in.
func (h *Hub) Join(c *Client, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.room == userID {
		if _, ok := h.rooms[userID][c]; ok {
			return
		}
	}
	h.removeLocked(c)

	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[userID] = room
	}
	room[c] = struct{}{}
	c.room = userID
}

func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if c.room == "" {
		return
	}
	if room, ok := h.rooms[c.room]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// RoomOf reports the room c is in, or "".
func (h *Hub) RoomOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.room
}

// Members counts the local connections in userID's room.
func (h *Hub) Members(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Broadcast sends frame to every connection of userID on every instance.
func (h *Hub) Broadcast(ctx context.Context, userID string, frame []byte) {
	h.deliver(userID, frame)

	if h.pubsub == nil {
		return
	}
	payload, err := json.Marshal(roomMessage{Origin: h.origin, UserID: userID, Frame: frame})
	if err != nil {
		logrus.WithError(err).Error("failed to encode room message")
		return
	}
	if err := h.pubsub.Publish(ctx, h.channel, payload); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("room fan-out failed")
	}
}

// BroadcastSnapshot pushes a cartUpdated frame to userID's room.
func (h *Hub) BroadcastSnapshot(ctx context.Context, userID string, snap *cartsync.CartSnapshot) {
	frame, err := cartsync.NewEnvelope(cartsync.EventCartUpdated, snap.OwnedBy(userID))
	if err != nil {
		logrus.WithError(err).Error("failed to encode snapshot")
		return
	}
	h.Broadcast(ctx, userID, frame)
}

// deliver writes to local connections only. A connection that cannot keep
// up is dropped from its room and closed.
func (h *Hub) deliver(userID string, frame []byte) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.rooms[userID] {
		if !c.Send(frame) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logrus.WithFields(logrus.Fields{"client_id": c.ID, "user_id": userID}).Warn("dropping slow client")
		h.Leave(c)
		c.Close()
	}
}
