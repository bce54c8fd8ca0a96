// Package cartsync is the client side of the realtime cart channel.
//
// A Provider joins the signed-in user's cart room over a single shared
// Transport, sends cart commands without touching local state and
// replaces its local cart wholesale whenever the server pushes a
// snapshot.
package cartsync

import "encoding/json"

// Client to server events.
const (
	EventJoinCart       = "joinCart"
	EventGetCart        = "getCart"
	EventAddToCart      = "addToCart"
	EventUpdateQuantity = "updateQuantity"
	EventRemoveFromCart = "removeFromCart"
)

// Server to client events.
const (
	EventCartUpdated = "cartUpdated"
	EventCartError   = "cartError"
	EventCartAck     = "cartAck"
)

// Envelope is the frame written on the wire for every event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload as the data of an event frame.
func NewEnvelope(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// CartLine is one service in the cart. Display fields are optional.
type CartLine struct {
	ServiceID string  `json:"serviceId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
	Name      string  `json:"name,omitempty"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

// CartSnapshot is the complete cart of one user as pushed by the server.
// UserID names the cart's owner; servers that omit it are trusted to only
// push the joined room's cart.
type CartSnapshot struct {
	UserID string     `json:"userId,omitempty"`
	Items  []CartLine `json:"items"`
}

// OwnedBy returns a copy of s tagged with userID unless it already names
// an owner.
func (s CartSnapshot) OwnedBy(userID string) *CartSnapshot {
	if s.UserID == "" {
		s.UserID = userID
	}
	return &s
}

// UserPayload is sent with joinCart and getCart.
type UserPayload struct {
	UserID string `json:"userId"`
}

// ItemPayload is sent with addToCart and updateQuantity. Quantity is always
// encoded, zero included.
type ItemPayload struct {
	UserID    string `json:"userId"`
	ServiceID string `json:"serviceId"`
	Quantity  int    `json:"quantity"`
	RequestID string `json:"requestId,omitempty"`
}

// RemovePayload is sent with removeFromCart.
type RemovePayload struct {
	UserID    string `json:"userId"`
	ServiceID string `json:"serviceId"`
	RequestID string `json:"requestId,omitempty"`
}

// Ack answers a command that carried a request id.
type Ack struct {
	RequestID string `json:"requestId"`
	Error     string `json:"error,omitempty"`
}
