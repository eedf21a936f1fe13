// Package event defines the closed set of outbound events the relay can
// deliver to a connection. One variant exists per wire event name; the
// transport layer owns the JSON shapes.
package event

import "chat-relay/domain"

type Event interface {
	EventName() string
}

// NewMessage fans a persisted message record out to the members of its
// room, excluding the sender.
type NewMessage struct {
	Message domain.Message
}

func (e NewMessage) EventName() string { return "new-message" }

// UserStatusChange is broadcast to every connection, not room-scoped:
// everyone sees everyone's status.
type UserStatusChange struct {
	UserID domain.UserID
	Status bool
}

func (e UserStatusChange) EventName() string { return "user-status-change" }

// UserTyping is delivered to the current members of a room, excluding
// the typer.
type UserTyping struct {
	Room   domain.RoomID
	UserID domain.UserID
}

func (e UserTyping) EventName() string { return "user-typing" }

type UserStopTyping struct {
	Room   domain.RoomID
	UserID domain.UserID
}

func (e UserStopTyping) EventName() string { return "user-stop-typing" }
