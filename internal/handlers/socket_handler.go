package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang-cart-sync/internal/hub"
	"golang-cart-sync/internal/middleware"
	"golang-cart-sync/internal/repositories"
	"golang-cart-sync/internal/services"
	"golang-cart-sync/pkg/auth"
	"golang-cart-sync/pkg/cartsync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const commandTimeout = 10 * time.Second

var (
	errForbiddenRoom = errors.New("not allowed to access this cart")
	errUnknownEvent  = errors.New("unknown event")
	errBadPayload    = errors.New("malformed payload")
)

type SocketConfig struct {
	AllowedOrigins []string
	SendQueue      int
	PingInterval   time.Duration
}

// SocketHandler serves the realtime cart channel.
type SocketHandler struct {
	carts    CartServiceInterface
	hub      *hub.Hub
	upgrader websocket.Upgrader
	cfg      SocketConfig
}

func NewSocketHandler(carts CartServiceInterface, h *hub.Hub, cfg SocketConfig) *SocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 54 * time.Second
	}
	return &SocketHandler{
		carts: carts,
		hub:   h,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func (h *SocketHandler) RegisterRoutes(router gin.IRoutes, authMiddleware *middleware.AuthMiddleware) {
	router.GET("/ws", authMiddleware.AuthRequired(), h.Serve)
}

// Serve upgrades the request and blocks until the connection is gone.
func (h *SocketHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := hub.NewClient(conn, middleware.GetUserID(c), middleware.GetUserRole(c), h.cfg.SendQueue)
	log := logrus.WithFields(logrus.Fields{"conn_id": client.ID, "user_id": client.UserID})
	log.Info("websocket connected")

	go client.WritePump(h.cfg.PingInterval)
	client.ReadPump(h.cfg.PingInterval, func(raw []byte) {
		h.handle(client, log, raw)
	})

	h.hub.Leave(client)
	log.Info("websocket disconnected")
}

func (h *SocketHandler) handle(client *hub.Client, log *logrus.Entry, raw []byte) {
	var env cartsync.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(client, errBadPayload.Error())
		return
	}
	log = log.WithField("event", env.Event)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch env.Event {
	case cartsync.EventJoinCart:
		var p cartsync.UserPayload
		target, err := h.target(client, env.Data, &p, func() string { return p.UserID })
		if err != nil {
			h.sendError(client, err.Error())
			return
		}
		h.hub.Join(client, target)
		log.WithField("room", target).Debug("joined cart room")

	case cartsync.EventGetCart:
		var p cartsync.UserPayload
		target, err := h.target(client, env.Data, &p, func() string { return p.UserID })
		if err != nil {
			h.sendError(client, err.Error())
			return
		}
		snap, err := h.carts.GetSnapshot(ctx, target)
		if err != nil {
			h.sendError(client, h.describe(log, err))
			return
		}
		h.send(client, cartsync.EventCartUpdated, snap.OwnedBy(target))

	case cartsync.EventAddToCart, cartsync.EventUpdateQuantity:
		var p cartsync.ItemPayload
		target, err := h.target(client, env.Data, &p, func() string { return p.UserID })
		if err != nil {
			h.finish(ctx, client, log, p.RequestID, "", nil, err)
			return
		}
		var snap *cartsync.CartSnapshot
		if env.Event == cartsync.EventAddToCart {
			if p.Quantity == 0 {
				p.Quantity = cartsync.DefaultQuantity
			}
			snap, err = h.carts.AddItem(ctx, target, p.ServiceID, p.Quantity)
		} else {
			snap, err = h.carts.UpdateQuantity(ctx, target, p.ServiceID, p.Quantity)
		}
		h.finish(ctx, client, log, p.RequestID, target, snap, err)

	case cartsync.EventRemoveFromCart:
		var p cartsync.RemovePayload
		target, err := h.target(client, env.Data, &p, func() string { return p.UserID })
		if err != nil {
			h.finish(ctx, client, log, p.RequestID, "", nil, err)
			return
		}
		snap, err := h.carts.RemoveItem(ctx, target, p.ServiceID)
		h.finish(ctx, client, log, p.RequestID, target, snap, err)

	default:
		h.sendError(client, errUnknownEvent.Error())
	}
}

// target decodes data into payload and returns the cart it addresses. An
// absent user id addresses the caller's own cart; only admins may address
// another user's.
func (h *SocketHandler) target(client *hub.Client, data json.RawMessage, payload interface{}, userID func() string) (string, error) {
	if len(data) > 0 {
		if err := json.Unmarshal(data, payload); err != nil {
			return "", errBadPayload
		}
	}
	target := userID()
	if target == "" {
		target = client.UserID
	}
	if target != client.UserID && client.Role != auth.RoleAdmin {
		return "", errForbiddenRoom
	}
	return target, nil
}

// finish broadcasts a successful mutation to the room, reports a failed
// one to the caller, then acknowledges when a request id was supplied.
func (h *SocketHandler) finish(ctx context.Context, client *hub.Client, log *logrus.Entry, requestID, userID string, snap *cartsync.CartSnapshot, err error) {
	var ack cartsync.Ack
	ack.RequestID = requestID

	if err != nil {
		message := h.describe(log, err)
		h.sendError(client, message)
		ack.Error = message
	} else {
		h.hub.BroadcastSnapshot(ctx, userID, snap)
	}

	if requestID != "" {
		h.send(client, cartsync.EventCartAck, ack)
	}
}

// describe turns err into the message shown to the user. Unexpected
// errors are logged and hidden.
func (h *SocketHandler) describe(log *logrus.Entry, err error) string {
	switch {
	case errors.Is(err, errForbiddenRoom),
		errors.Is(err, errBadPayload),
		errors.Is(err, services.ErrInvalidUser),
		errors.Is(err, services.ErrInvalidService),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrLineNotFound),
		errors.Is(err, repositories.ErrServiceNotFound):
		return err.Error()
	}
	log.WithError(err).Error("cart command failed")
	return "failed to update cart"
}

func (h *SocketHandler) sendError(client *hub.Client, message string) {
	h.send(client, cartsync.EventCartError, message)
}

func (h *SocketHandler) send(client *hub.Client, event string, payload interface{}) {
	frame, err := cartsync.NewEnvelope(event, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("failed to encode frame")
		return
	}
	if !client.Send(frame) {
		logrus.WithField("conn_id", client.ID).Warn("send queue full, closing connection")
		client.Close()
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
