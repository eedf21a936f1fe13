package runtime

import (
	"chat-relay/domain"
	"sync"
	"time"
)

// Typing holds (room, user) -> expiry deadline. Entries are refreshed on
// every typing event and die after a quiescence window so a client that
// crashes without sending stop-typing cannot leave a stuck indicator.
// A background sweeper drives Expire on a fixed interval.
type Typing struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[domain.TypingEntry]time.Time

	// now is swapped in tests to drive expiry deterministically.
	now func() time.Time
}

func NewTyping(window time.Duration) *Typing {
	return &Typing{
		window:  window,
		entries: make(map[domain.TypingEntry]time.Time),
		now:     time.Now,
	}
}

// StartTyping refreshes the entry's deadline and reports whether this is
// a transition from not-typing to typing. Repeated keystrokes inside the
// window refresh silently, so the caller broadcasts at most once per
// quiescence period.
func (t *Typing) StartTyping(room domain.RoomID, user domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := domain.TypingEntry{Room: room, User: user}
	now := t.now()
	deadline, ok := t.entries[key]
	t.entries[key] = now.Add(t.window)
	return !ok || !deadline.After(now)
}

// StopTyping removes the entry immediately and reports whether a live
// entry existed; an entry past its deadline counts as already stopped.
func (t *Typing) StopTyping(room domain.RoomID, user domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := domain.TypingEntry{Room: room, User: user}
	deadline, ok := t.entries[key]
	if !ok {
		return false
	}
	delete(t.entries, key)
	return deadline.After(t.now())
}

// Expire removes every entry whose deadline has passed and returns them
// so the router can broadcast the corresponding stop-typing events.
func (t *Typing) Expire() []domain.TypingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []domain.TypingEntry
	for key, deadline := range t.entries {
		if !deadline.After(now) {
			expired = append(expired, key)
			delete(t.entries, key)
		}
	}
	return expired
}

// ClearUser drops all of a user's entries and returns the affected rooms.
// Invoked when the user's presence flips offline: a typing entry never
// outlives its owner's online state.
func (t *Typing) ClearUser(user domain.UserID) []domain.RoomID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rooms []domain.RoomID
	for key := range t.entries {
		if key.User == user {
			rooms = append(rooms, key.Room)
			delete(t.entries, key)
		}
	}
	return rooms
}
