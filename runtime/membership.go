package runtime

import (
	"chat-relay/domain"
	"sync"
)

type connSet map[domain.ConnID]struct{}
type roomSet map[domain.RoomID]struct{}

// Membership maintains room -> connections and connection -> rooms as a
// consistent bidirectional mapping. A room's subscription set is created
// lazily on first join; absence and emptiness are equivalent, so empty
// sets are pruned eagerly to avoid leaking room entries over time.
//
// No authorization happens here: whether a user may enter a room was
// decided upstream, before the join ever reached the router.
type Membership struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]connSet
	conns map[domain.ConnID]roomSet
}

func NewMembership() *Membership {
	return &Membership{
		rooms: make(map[domain.RoomID]connSet),
		conns: make(map[domain.ConnID]roomSet),
	}
}

// Join is idempotent.
func (m *Membership) Join(room domain.RoomID, id domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room]; !ok {
		m.rooms[room] = make(connSet)
	}
	m.rooms[room][id] = struct{}{}

	if _, ok := m.conns[id]; !ok {
		m.conns[id] = make(roomSet)
	}
	m.conns[id][room] = struct{}{}
}

// Leave is idempotent: leaving a room never joined is a no-op.
func (m *Membership) Leave(room domain.RoomID, id domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leave(room, id)
}

func (m *Membership) leave(room domain.RoomID, id domain.ConnID) {
	if members, ok := m.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	if joined, ok := m.conns[id]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.conns, id)
		}
	}
}

// RemoveConnection leaves every room the connection was in and returns
// those rooms. Called exclusively by the router's disconnect cascade.
func (m *Membership) RemoveConnection(id domain.ConnID) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined, ok := m.conns[id]
	if !ok {
		return nil
	}
	rooms := make([]domain.RoomID, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		m.leave(room, id)
	}
	return rooms
}

// MembersOf returns the current connection set for fan-out. An unknown
// room yields an empty set, not an error.
func (m *Membership) MembersOf(room domain.RoomID) []domain.ConnID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.rooms[room]
	if !ok {
		return nil
	}
	ids := make([]domain.ConnID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (m *Membership) RoomsOf(id domain.ConnID) []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	joined, ok := m.conns[id]
	if !ok {
		return nil
	}
	rooms := make([]domain.RoomID, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	return rooms
}
