package domain

// TypingEntry keys transient typing state by room and user.
type TypingEntry struct {
	Room RoomID
	User UserID
}
