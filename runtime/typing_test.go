package runtime

import (
	"chat-relay/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const window = 5 * time.Second

// fakeClock drives Typing deterministically.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time          { return c.current }
func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTypingWithClock() (*Typing, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	typing := NewTyping(window)
	typing.now = clock.now
	return typing, clock
}

func TestTyping_Coalesces_Within_Window(t *testing.T) {
	req := require.New(t)
	typing, clock := newTypingWithClock()
	room := domain.RoomID("r1")
	user := domain.UserID("alice")

	// Given a first keystroke
	req.True(typing.StartTyping(room, user), "first keystroke is a fresh transition")

	// When more keystrokes land inside the window
	clock.advance(2 * time.Second)
	req.False(typing.StartTyping(room, user), "refresh only")
	clock.advance(2 * time.Second)
	req.False(typing.StartTyping(room, user), "deadline moved, still not fresh")

	// Then a keystroke after the window is a fresh transition again
	clock.advance(window + time.Second)
	req.True(typing.StartTyping(room, user))
}

func TestTyping_Stop_Reports_Live_Entry(t *testing.T) {
	req := require.New(t)
	typing, clock := newTypingWithClock()
	room := domain.RoomID("r1")
	user := domain.UserID("alice")

	// Given no entry
	req.False(typing.StopTyping(room, user))

	// Given a live entry
	typing.StartTyping(room, user)
	req.True(typing.StopTyping(room, user))

	// Given an entry already past its deadline
	typing.StartTyping(room, user)
	clock.advance(window + time.Second)
	req.False(typing.StopTyping(room, user), "expired entry counts as already stopped")
}

func TestTyping_Expire_Sweeps_Stale_Entries(t *testing.T) {
	req := require.New(t)
	typing, clock := newTypingWithClock()

	// Given one stale and one fresh entry
	typing.StartTyping("r1", "alice")
	clock.advance(window - time.Second)
	typing.StartTyping("r2", "bob")
	clock.advance(2 * time.Second)

	// When the sweep runs
	expired := typing.Expire()

	// Then only the stale entry is returned and removed
	req.Equal([]domain.TypingEntry{{Room: "r1", User: "alice"}}, expired)
	req.Empty(typing.Expire(), "second sweep finds nothing new yet")

	// And the fresh entry expires on a later sweep
	clock.advance(window)
	req.Equal([]domain.TypingEntry{{Room: "r2", User: "bob"}}, typing.Expire())
}

func TestTyping_ClearUser_Drops_All_Rooms(t *testing.T) {
	req := require.New(t)
	typing, _ := newTypingWithClock()

	// Given one user typing in two rooms and another in one
	typing.StartTyping("r1", "alice")
	typing.StartTyping("r2", "alice")
	typing.StartTyping("r1", "bob")

	// When alice goes offline
	rooms := typing.ClearUser("alice")

	// Then her entries are gone and bob's remains
	req.ElementsMatch([]domain.RoomID{"r1", "r2"}, rooms)
	req.True(typing.StopTyping("r1", "bob"))
	req.False(typing.StopTyping("r1", "alice"))
}
