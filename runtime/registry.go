// Package runtime hosts the coordinator stores and the event router.
// It moves events between connections without containing business rules:
// message content is opaque and durability lives behind the external API.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
)

// session is the registry's view of one live connection. The sink is the
// only handle other components get; the connection itself is owned here.
type session struct {
	sink contract.EventSink

	// user is empty until a user-online event binds an identity.
	user domain.UserID

	// verified carries the identity proven at the handshake when token
	// auth is enabled. Empty means the relay trusts the declared identity.
	verified domain.UserID

	// offlineAnnounced is set once an explicit user-offline event has
	// already decremented presence, so the disconnect cascade does not
	// decrement a second time.
	offlineAnnounced bool
}

type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sessions map[domain.ConnID]*session
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[domain.ConnID]*session),
	}
}

// Register creates an entry with no bound identity. It has no error
// conditions; registering an already-known connection replaces its sink.
func (r *Registry) Register(id domain.ConnID, sink contract.EventSink, verified domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &session{sink: sink, verified: verified}
}

// BindIdentity associates a user with a connection. Calling it again with
// the same identity is idempotent; a different identity replaces the old
// one (last-write-wins), since a transport-level connection is tied to a
// single logical user at a time. The previous identity and whether an
// explicit offline had already been announced for it are returned so the
// caller can rebalance presence counts: an announced identity no longer
// holds a count, so re-binding it must increment again.
func (r *Registry) BindIdentity(id domain.ConnID, user domain.UserID) (domain.UserID, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return "", false, false
	}
	previous := s.user
	announced := s.offlineAnnounced
	s.user = user
	s.offlineAnnounced = false
	return previous, announced, true
}

func (r *Registry) Identity(id domain.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || s.user == "" {
		return "", false
	}
	return s.user, true
}

func (r *Registry) Verified(id domain.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || s.verified == "" {
		return "", false
	}
	return s.verified, true
}

// AnnounceOffline records an explicit user-offline event. It returns the
// bound identity and whether presence still needs decrementing for it.
func (r *Registry) AnnounceOffline(id domain.ConnID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.user == "" || s.offlineAnnounced {
		return "", false
	}
	s.offlineAnnounced = true
	return s.user, true
}

// Unregister removes the connection. The caller (the router cascade) is
// responsible for membership removal and the presence decrement signalled
// by needsOffline; a crashed or closed connection must never leave
// orphaned membership or stale online presence behind.
func (r *Registry) Unregister(id domain.ConnID) (user domain.UserID, needsOffline bool, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return "", false, false
	}
	delete(r.sessions, id)
	return s.user, s.user != "" && !s.offlineAnnounced, true
}

// Deliver is best-effort: a connection that vanished between fan-out-set
// computation and delivery is a silent no-op, not an error. It reports
// whether the event was accepted by the sink.
func (r *Registry) Deliver(ctx context.Context, id domain.ConnID, e event.Event) bool {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if err := s.sink.Consume(ctx, e); err != nil {
		r.log.Debug("Delivery skipped", "connection", id, "event", e.EventName(), "error", err)
		return false
	}
	return true
}

// Snapshot returns the current connection identifiers, used for global
// broadcasts such as presence changes.
func (r *Registry) Snapshot() []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ConnID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
