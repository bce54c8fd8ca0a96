package cartsync

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// RoomController keeps the connection joined to the current user's room.
type RoomController struct {
	transport Transport
	log       logrus.FieldLogger

	mu           sync.Mutex
	userID       string
	offReconnect func()
}

// NewRoomController rejoins the current room after every transport
// reconnect.
func NewRoomController(t Transport, log logrus.FieldLogger) *RoomController {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &RoomController{
		transport: t,
		log:       log.WithField("component", "cartsync.room"),
	}
	r.offReconnect = t.OnReconnect(r.rejoin)
	return r
}

// SetUser joins userID's room and asks for its cart. An empty id or the
// current id is a no-op. It reports whether the identity changed.
func (r *RoomController) SetUser(userID string) bool {
	r.mu.Lock()
	if userID == r.userID {
		r.mu.Unlock()
		return false
	}
	r.userID = userID
	r.mu.Unlock()

	if userID == "" {
		return true
	}
	r.JoinRoom(userID)
	r.RequestSnapshot(userID)
	return true
}

func (r *RoomController) UserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

func (r *RoomController) JoinRoom(userID string) {
	r.emit(EventJoinCart, userID)
}

func (r *RoomController) RequestSnapshot(userID string) {
	r.emit(EventGetCart, userID)
}

func (r *RoomController) emit(event, userID string) {
	if userID == "" {
		return
	}
	if err := r.transport.Emit(event, UserPayload{UserID: userID}); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{"event": event, "user_id": userID}).Warn("emit failed")
	}
}

func (r *RoomController) rejoin() {
	userID := r.UserID()
	if userID == "" {
		return
	}
	r.log.WithField("user_id", userID).Debug("rejoining after reconnect")
	r.JoinRoom(userID)
	r.RequestSnapshot(userID)
}

// Close stops rejoining on reconnect.
func (r *RoomController) Close() {
	r.offReconnect()
}
