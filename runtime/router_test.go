package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	chaterrors "chat-relay/errors"
	"chat-relay/internal/logs"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// routerFixture wires a Router to real stores and one recording sink per
// connection, and feeds commands straight into handle so assertions run
// against a fully-settled state.
type routerFixture struct {
	router *Router
	typing *Typing
	clock  *fakeClock
	sinks  map[domain.ConnID]*recordingSink
}

func newRouterFixture(t *testing.T, validator contract.RoomValidator) *routerFixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	typing, clock := newTypingWithClock()
	router := NewRouter(log, NewRegistry(log), NewMembership(),
		NewPresence(log), typing, validator, observability.NewMonitor(), 16)
	return &routerFixture{
		router: router,
		typing: typing,
		clock:  clock,
		sinks:  make(map[domain.ConnID]*recordingSink),
	}
}

// connect registers a connection and binds its identity.
func (f *routerFixture) connect(user domain.UserID) domain.ConnID {
	conn := domain.NewConnID()
	sink := &recordingSink{}
	f.sinks[conn] = sink
	f.router.handle(context.Background(), RegisterCommand{Connection: conn, Sink: sink})
	f.router.handle(context.Background(), domain.UserOnlineCommand{Connection: conn, UserID: user})
	return conn
}

func (f *routerFixture) handle(cmd domain.Command) {
	f.router.handle(context.Background(), cmd)
}

// reset discards events accumulated during fixture setup.
func (f *routerFixture) reset() {
	for _, sink := range f.sinks {
		sink.events = nil
	}
}

func (f *routerFixture) eventsOf(conn domain.ConnID) []event.Event {
	return f.sinks[conn].events
}

func TestRouter_Online_Broadcasts_Status_Exactly_Once(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	// Given an observer already online
	observer := f.connect("observer")
	f.reset()

	// When alice comes online through two connections
	first := f.connect("alice")
	f.connect("alice")

	// Then exactly one online broadcast went out, to everyone
	req.Equal([]event.Event{event.UserStatusChange{UserID: "alice", Status: true}},
		f.eventsOf(observer))
	req.Equal([]event.Event{event.UserStatusChange{UserID: "alice", Status: true}},
		f.eventsOf(first))
}

func TestRouter_Offline_Broadcasts_Only_When_Last_Connection_Goes(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	observer := f.connect("observer")
	tab1 := f.connect("alice")
	tab2 := f.connect("alice")
	f.reset()

	// When one of alice's two connections disconnects
	f.handle(domain.DisconnectCommand{Connection: tab1})

	// Then no offline broadcast happens yet
	req.Empty(f.eventsOf(observer))

	// When the last one goes
	f.handle(domain.DisconnectCommand{Connection: tab2})

	// Then the single offline broadcast goes out
	req.Equal([]event.Event{event.UserStatusChange{UserID: "alice", Status: false}},
		f.eventsOf(observer))
}

func TestRouter_Explicit_Offline_Then_Disconnect_Decrements_Once(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	observer := f.connect("observer")
	conn := f.connect("alice")
	f.reset()

	// When alice announces offline and then the socket closes
	f.handle(domain.UserOfflineCommand{Connection: conn, UserID: "alice"})
	f.handle(domain.DisconnectCommand{Connection: conn})

	// Then the observer saw exactly one offline broadcast
	req.Equal([]event.Event{event.UserStatusChange{UserID: "alice", Status: false}},
		f.eventsOf(observer))
}

func TestRouter_Online_After_Explicit_Offline_Comes_Back(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	observer := f.connect("observer")
	conn := f.connect("alice")
	f.reset()

	// When alice goes offline and then re-announces on the same connection
	f.handle(domain.UserOfflineCommand{Connection: conn, UserID: "alice"})
	f.handle(domain.UserOnlineCommand{Connection: conn, UserID: "alice"})

	// Then both transitions were broadcast and alice is online again
	req.Equal([]event.Event{
		event.UserStatusChange{UserID: "alice", Status: false},
		event.UserStatusChange{UserID: "alice", Status: true},
	}, f.eventsOf(observer))
	req.True(f.router.presence.IsOnline("alice"))

	// And the eventual disconnect yields one clean offline transition
	f.handle(domain.DisconnectCommand{Connection: conn})
	req.Equal([]event.Event{
		event.UserStatusChange{UserID: "alice", Status: false},
		event.UserStatusChange{UserID: "alice", Status: true},
		event.UserStatusChange{UserID: "alice", Status: false},
	}, f.eventsOf(observer))
	req.False(f.router.presence.IsOnline("alice"))
}

func TestRouter_Rebind_After_Explicit_Offline_Skips_Rebalance(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	observer := f.connect("observer")
	conn := f.connect("alice")
	f.reset()

	// When alice announces offline and the connection re-binds as bob
	f.handle(domain.UserOfflineCommand{Connection: conn, UserID: "alice"})
	f.handle(domain.UserOnlineCommand{Connection: conn, UserID: "bob"})

	// Then alice's count was already released; only bob transitions
	req.Equal([]event.Event{
		event.UserStatusChange{UserID: "alice", Status: false},
		event.UserStatusChange{UserID: "bob", Status: true},
	}, f.eventsOf(observer))
	req.False(f.router.presence.IsOnline("alice"))
	req.True(f.router.presence.IsOnline("bob"))
}

func TestRouter_Rebind_Moves_Presence_To_New_Identity(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	observer := f.connect("observer")
	conn := f.connect("alice")
	f.reset()

	// When the connection re-announces as a different user
	f.handle(domain.UserOnlineCommand{Connection: conn, UserID: "bob"})

	// Then alice went offline and bob came online
	req.Equal([]event.Event{
		event.UserStatusChange{UserID: "alice", Status: false},
		event.UserStatusChange{UserID: "bob", Status: true},
	}, f.eventsOf(observer))
}

func TestRouter_Message_FanOut_Excludes_Sender_And_NonMembers(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	alice := f.connect("alice")
	bob := f.connect("bob")
	carol := f.connect("carol")
	f.handle(domain.JoinRoomCommand{Connection: alice, Room: "r1"})
	f.handle(domain.JoinRoomCommand{Connection: bob, Room: "r1"})
	f.reset()

	// When alice sends a persisted message to r1
	message := domain.Message{
		ID:        uuid.NewString(),
		Content:   "hi",
		AuthorID:  "alice",
		RoomID:    "r1",
		CreatedAt: time.Now().UTC(),
	}
	f.handle(domain.SendMessageCommand{Connection: alice, Message: message})

	// Then bob receives it, carol (not a member) and alice (sender) do not
	req.Equal([]event.Event{event.NewMessage{Message: message}}, f.eventsOf(bob))
	req.Empty(f.eventsOf(carol))
	req.Empty(f.eventsOf(alice))
}

func TestRouter_Message_To_Unknown_Room_Reaches_Nobody(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	alice := f.connect("alice")
	bob := f.connect("bob")
	f.reset()

	f.handle(domain.SendMessageCommand{Connection: alice, Message: domain.Message{
		ID: uuid.NewString(), Content: "into the void", AuthorID: "alice", RoomID: "ghost",
	}})

	req.Empty(f.eventsOf(bob))
}

func TestRouter_Message_Before_Identity_Is_Dropped(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	bob := f.connect("bob")
	f.handle(domain.JoinRoomCommand{Connection: bob, Room: "r1"})

	// Given a registered but never-identified connection
	anon := domain.NewConnID()
	f.sinks[anon] = &recordingSink{}
	f.handle(RegisterCommand{Connection: anon, Sink: f.sinks[anon]})
	f.reset()

	// When it tries to send
	f.handle(domain.SendMessageCommand{Connection: anon, Message: domain.Message{
		ID: uuid.NewString(), Content: "hi", RoomID: "r1",
	}})

	// Then nothing is delivered and the error counter moved
	req.Empty(f.eventsOf(bob))
	req.Equal(uint64(1), f.router.monitor.GetLatest().ProtocolErrors)
}

func TestRouter_Typing_Coalesced_And_Excludes_Typer(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	alice := f.connect("alice")
	bob := f.connect("bob")
	f.handle(domain.JoinRoomCommand{Connection: alice, Room: "r1"})
	f.handle(domain.JoinRoomCommand{Connection: bob, Room: "r1"})
	f.reset()

	// When alice types three times inside the window
	f.handle(domain.TypingCommand{Connection: alice, Room: "r1"})
	f.clock.advance(time.Second)
	f.handle(domain.TypingCommand{Connection: alice, Room: "r1"})
	f.handle(domain.TypingCommand{Connection: alice, Room: "r1"})

	// Then bob saw a single typing broadcast and alice saw none
	req.Equal([]event.Event{event.UserTyping{Room: "r1", UserID: "alice"}},
		f.eventsOf(bob))
	req.Empty(f.eventsOf(alice))

	// When alice stops
	f.handle(domain.StopTypingCommand{Connection: alice, Room: "r1"})

	// Then exactly one stop broadcast follows
	req.Equal([]event.Event{
		event.UserTyping{Room: "r1", UserID: "alice"},
		event.UserStopTyping{Room: "r1", UserID: "alice"},
	}, f.eventsOf(bob))

	// And a redundant stop broadcasts nothing more
	f.handle(domain.StopTypingCommand{Connection: alice, Room: "r1"})
	req.Len(f.eventsOf(bob), 2)
}

func TestRouter_Sweep_Broadcasts_Expired_Typing(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	alice := f.connect("alice")
	bob := f.connect("bob")
	f.handle(domain.JoinRoomCommand{Connection: alice, Room: "r1"})
	f.handle(domain.JoinRoomCommand{Connection: bob, Room: "r1"})
	f.handle(domain.TypingCommand{Connection: alice, Room: "r1"})
	f.reset()

	// When the sweep runs before the window elapses
	f.handle(sweepCommand{})
	req.Empty(f.eventsOf(bob))

	// When it runs after
	f.clock.advance(window + time.Second)
	f.handle(sweepCommand{})

	// Then the stale indicator is retired with a broadcast
	req.Equal([]event.Event{event.UserStopTyping{Room: "r1", UserID: "alice"}},
		f.eventsOf(bob))
}

func TestRouter_Disconnect_Cascade_Cleans_Everything(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	alice := f.connect("alice")
	bob := f.connect("bob")
	f.handle(domain.JoinRoomCommand{Connection: alice, Room: "r1"})
	f.handle(domain.JoinRoomCommand{Connection: bob, Room: "r1"})
	f.handle(domain.TypingCommand{Connection: alice, Room: "r1"})
	f.reset()

	// When alice's connection dies mid-typing
	f.handle(domain.DisconnectCommand{Connection: alice})

	// Then bob sees the typing retire and the status change
	req.Equal([]event.Event{
		event.UserStopTyping{Room: "r1", UserID: "alice"},
		event.UserStatusChange{UserID: "alice", Status: false},
	}, f.eventsOf(bob))

	// And no membership or typing trace remains
	req.Equal([]domain.ConnID{bob}, f.router.membership.MembersOf("r1"))
	req.Empty(f.router.membership.RoomsOf(alice))
	req.False(f.typing.StopTyping("r1", "alice"))

	// And a later message does not reach the dead connection
	f.reset()
	f.handle(domain.SendMessageCommand{Connection: bob, Message: domain.Message{
		ID: uuid.NewString(), Content: "still there?", AuthorID: "bob", RoomID: "r1",
	}})
	req.Empty(f.eventsOf(alice))
}

func TestRouter_Leave_Room_Retires_Typing_There(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	alice := f.connect("alice")
	bob := f.connect("bob")
	f.handle(domain.JoinRoomCommand{Connection: alice, Room: "r1"})
	f.handle(domain.JoinRoomCommand{Connection: bob, Room: "r1"})
	f.handle(domain.TypingCommand{Connection: alice, Room: "r1"})
	f.reset()

	// When alice leaves while typing
	f.handle(domain.LeaveRoomCommand{Connection: alice, Room: "r1"})

	// Then the room hears the typing stop
	req.Equal([]event.Event{event.UserStopTyping{Room: "r1", UserID: "alice"}},
		f.eventsOf(bob))
}

func TestRouter_Verified_Identity_Mismatch_Is_Dropped(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	observer := f.connect("observer")
	f.reset()

	// Given a connection whose handshake proved "alice"
	conn := domain.NewConnID()
	sink := &recordingSink{}
	f.sinks[conn] = sink
	f.handle(RegisterCommand{Connection: conn, Sink: sink, Verified: "alice"})

	// When it declares itself as someone else
	f.handle(domain.UserOnlineCommand{Connection: conn, UserID: "mallory"})

	// Then no presence change happens
	req.Empty(f.eventsOf(observer))

	// And the honest declaration still works
	f.handle(domain.UserOnlineCommand{Connection: conn, UserID: "alice"})
	req.Equal([]event.Event{event.UserStatusChange{UserID: "alice", Status: true}},
		f.eventsOf(observer))
}

func TestRouter_Join_Waits_For_Validation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	validator := mocks.NewMockRoomValidator(ctrl)
	f := newRouterFixture(t, validator)

	alice := f.connect("alice")
	bob := f.connect("bob")
	f.reset()

	// Given the validation call succeeds
	validator.EXPECT().
		ValidateJoin(gomock.Any(), domain.UserID("alice"), domain.RoomID("r1")).
		Return(nil)

	// When alice joins: the join is applied only after the re-dispatched
	// command comes back through the mailbox
	f.handle(domain.JoinRoomCommand{Connection: alice, Room: "r1"})
	req.Empty(f.router.membership.MembersOf("r1"))

	select {
	case cmd := <-f.router.mailbox:
		f.handle(cmd)
	case <-time.After(time.Second):
		t.Fatal("validated join never re-entered the mailbox")
	}
	req.Equal([]domain.ConnID{alice}, f.router.membership.MembersOf("r1"))

	// And a rejected join leaves membership untouched
	done := make(chan struct{})
	validator.EXPECT().
		ValidateJoin(gomock.Any(), domain.UserID("bob"), domain.RoomID("r1")).
		DoAndReturn(func(context.Context, domain.UserID, domain.RoomID) error {
			defer close(done)
			return chaterrors.ErrRoomValidation
		})
	f.handle(domain.JoinRoomCommand{Connection: bob, Room: "r1"})
	<-done
	req.Empty(f.router.mailbox)
	req.Equal([]domain.ConnID{alice}, f.router.membership.MembersOf("r1"))
}

func TestRouter_Disconnect_During_Join_Validation_Leaves_No_Member(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	validator := mocks.NewMockRoomValidator(ctrl)
	f := newRouterFixture(t, validator)

	alice := f.connect("alice")

	started := make(chan struct{})
	proceed := make(chan struct{})
	validator.EXPECT().
		ValidateJoin(gomock.Any(), domain.UserID("alice"), domain.RoomID("r1")).
		DoAndReturn(func(context.Context, domain.UserID, domain.RoomID) error {
			close(started)
			<-proceed
			return nil
		})

	// When the connection dies while its join validation is in flight
	f.handle(domain.JoinRoomCommand{Connection: alice, Room: "r1"})
	<-started
	f.handle(domain.DisconnectCommand{Connection: alice})
	close(proceed)

	select {
	case cmd := <-f.router.mailbox:
		f.handle(cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("validated join never re-entered the mailbox")
	}

	// Then the late join is discarded: no dead ID in any membership set
	req.Empty(f.router.membership.MembersOf("r1"))
	req.Equal(0, f.router.registry.Len())
}
