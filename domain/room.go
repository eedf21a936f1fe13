package domain

// RoomID identifies a room. Identifiers are assigned externally by the
// persistence layer; the relay only owns subscription sets, never room
// metadata.
type RoomID string
