package gateway

import (
	"context"
	"sync"

	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

// PresenceStore mirrors presence changes to durable storage.
type PresenceStore interface {
	SetStatus(ctx context.Context, id int64, status store.UserStatus) error
}

// Visible maps a stored status to what other users are allowed to see.
// INVISIBLE is a private state and renders as OFFLINE to every peer.
func Visible(s store.UserStatus) store.UserStatus {
	if s == store.StatusInvisible {
		return store.StatusOffline
	}
	return s
}

// Tracker holds the authoritative in-memory presence status for users
// with an active or recently active connection. Broadcast decisions are
// computed from this map; the store only mirrors it.
type Tracker struct {
	mu     sync.Mutex
	status map[int64]store.UserStatus
	store  PresenceStore
}

// NewTracker constructs a tracker backed by the given durable mirror.
func NewTracker(ps PresenceStore) *Tracker {
	return &Tracker{
		status: make(map[int64]store.UserStatus),
		store:  ps,
	}
}

// Track seeds the in-memory status from the durable record. A user that
// is already tracked keeps the in-memory value, which is authoritative.
func (t *Tracker) Track(userID int64, durable store.UserStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.status[userID]; !ok {
		t.status[userID] = durable
	}
}

// Status returns the tracked status for a user.
func (t *Tracker) Status(userID int64) (store.UserStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.status[userID]
	return s, ok
}

// IsOnline reports whether the user's tracked status is ONLINE.
// INVISIBLE counts as not online for any visibility decision.
func (t *Tracker) IsOnline(userID int64) bool {
	s, ok := t.Status(userID)
	return ok && s == store.StatusOnline
}

// Set updates the in-memory status and mirrors it durably. It reports
// whether the visible status actually changed; only such a transition
// may produce a STATUS_CHANGE broadcast. Setting the current status
// again is a no-op.
func (t *Tracker) Set(ctx context.Context, userID int64, status store.UserStatus) (bool, error) {
	t.mu.Lock()
	old, ok := t.status[userID]
	if !ok {
		old = store.StatusOffline
	}
	if old == status {
		t.mu.Unlock()
		return false, nil
	}
	t.status[userID] = status
	t.mu.Unlock()

	visibleChanged := Visible(old) != Visible(status)

	if err := t.store.SetStatus(ctx, userID, status); err != nil {
		// The in-memory value already moved; the mirror write is the
		// collaborator's problem to survive.
		return visibleChanged, err
	}
	return visibleChanged, nil
}

// Forget drops the in-memory entry after the user's last connection is
// gone. The durable record keeps the last mirrored status.
func (t *Tracker) Forget(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.status, userID)
}
