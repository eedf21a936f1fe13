package runtime

import (
	"chat-relay/domain"
	"log/slog"
	"sync"
)

// Presence keeps reference counts of live connections per user. A user is
// online iff at least one of their connections has announced itself, so
// closing one of several tabs does not flap the status. Entries that
// reach zero are removed; an absent entry reads as offline.
type Presence struct {
	mu     sync.Mutex
	log    *slog.Logger
	counts map[domain.UserID]int
}

func NewPresence(log *slog.Logger) *Presence {
	return &Presence{log: log, counts: make(map[domain.UserID]int)}
}

// MarkOnline increments the user's count and reports the 0 -> 1
// transition, on which the caller broadcasts a status change.
func (p *Presence) MarkOnline(user domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[user]++
	return p.counts[user] == 1
}

// MarkOffline decrements and reports the transition to zero. A decrement
// below zero is clamped and logged as an anomaly rather than propagated:
// presence is advisory state, never worth crashing over.
func (p *Presence) MarkOffline(user domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	count, ok := p.counts[user]
	if !ok || count <= 0 {
		p.log.Warn("Presence count underflow clamped", "user", user)
		delete(p.counts, user)
		return false
	}
	if count == 1 {
		delete(p.counts, user)
		return true
	}
	p.counts[user] = count - 1
	return false
}

func (p *Presence) IsOnline(user domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[user] > 0
}
