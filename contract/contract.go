//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one connection's outbound lane. Consume must not block the
// caller beyond the context: a full sink drops, it never stalls fan-out.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IRegistry owns the authoritative set of live connections and the
// identity bound to each.
type IRegistry interface {
	Register(id domain.ConnID, sink EventSink, verified domain.UserID)
	BindIdentity(id domain.ConnID, user domain.UserID) (previous domain.UserID, announcedOffline bool, ok bool)
	Identity(id domain.ConnID) (domain.UserID, bool)
	Verified(id domain.ConnID) (domain.UserID, bool)
	AnnounceOffline(id domain.ConnID) (domain.UserID, bool)
	Unregister(id domain.ConnID) (user domain.UserID, needsOffline bool, existed bool)
	Deliver(ctx context.Context, id domain.ConnID, e event.Event) bool
	Snapshot() []domain.ConnID
	Len() int
}

// IMembership maintains room -> connections and connection -> rooms as a
// consistent bidirectional mapping.
type IMembership interface {
	Join(room domain.RoomID, id domain.ConnID)
	Leave(room domain.RoomID, id domain.ConnID)
	RemoveConnection(id domain.ConnID) []domain.RoomID
	MembersOf(room domain.RoomID) []domain.ConnID
	RoomsOf(id domain.ConnID) []domain.RoomID
}

// IPresence is reference-counted online state per user.
type IPresence interface {
	MarkOnline(user domain.UserID) (transition bool)
	MarkOffline(user domain.UserID) (transition bool)
	IsOnline(user domain.UserID) bool
}

// ITyping holds transient per-room, per-user typing entries with a
// bounded lifetime.
type ITyping interface {
	StartTyping(room domain.RoomID, user domain.UserID) (fresh bool)
	StopTyping(room domain.RoomID, user domain.UserID) (existed bool)
	Expire() []domain.TypingEntry
	ClearUser(user domain.UserID) []domain.RoomID
}

// RoomValidator re-checks a join against the external collaborator.
// Optional: when absent the relay trusts the upstream HTTP authorization.
type RoomValidator interface {
	ValidateJoin(ctx context.Context, user domain.UserID, room domain.RoomID) error
}
