package cartsync

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Reconciler applies server pushes to a Store. It is the Store's only
// writer.
type Reconciler struct {
	store   *Store
	onError func(message string)
	log     logrus.FieldLogger
	offs    []func()

	mu     sync.Mutex
	scoped bool
	owner  string
}

// NewReconciler subscribes to cartUpdated and cartError on t. onError may
// be nil.
func NewReconciler(t Transport, store *Store, onError func(message string), log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Reconciler{
		store:   store,
		onError: onError,
		log:     log.WithField("component", "cartsync.reconciler"),
	}
	r.offs = append(r.offs,
		t.On(EventCartUpdated, r.onCartUpdated),
		t.On(EventCartError, r.onCartError),
	)
	return r
}

func (r *Reconciler) onCartUpdated(data json.RawMessage) {
	var snap CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.log.WithError(err).Warn("dropping malformed cart snapshot")
		return
	}
	r.Apply(snap)
}

// Apply replaces the local cart with snap. Once scoped with SetOwner, a
// snapshot tagged with another user's id is dropped.
func (r *Reconciler) Apply(snap CartSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scoped && snap.UserID != "" && snap.UserID != r.owner {
		r.log.WithFields(logrus.Fields{"user_id": snap.UserID, "owner": r.owner}).Debug("ignoring snapshot for another cart")
		return
	}
	if r.store.replace(snap.Items) {
		r.log.WithField("lines", len(snap.Items)).Debug("cart replaced")
	}
}

// SetOwner scopes the reconciler to userID's cart. Switching to a
// different owner empties the store in the same step, so a push for the
// previous owner that arrives later cannot repopulate it.
func (r *Reconciler) SetOwner(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoped = true
	if r.owner != userID {
		r.owner = userID
		r.store.replace(nil)
	}
}

func (r *Reconciler) onCartError(data json.RawMessage) {
	var msg string
	if err := json.Unmarshal(data, &msg); err != nil {
		msg = string(data)
	}
	r.log.WithField("message", msg).Warn("cart error from server")
	if r.onError != nil {
		r.onError(msg)
	}
}

// Detach removes the reconciler's event listeners.
func (r *Reconciler) Detach() {
	for _, off := range r.offs {
		off()
	}
	r.offs = nil
}
