package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// RegisterCommand enters a freshly-upgraded connection into the relay.
// It is defined here rather than in domain because it carries the sink.
type RegisterCommand struct {
	Connection domain.ConnID
	Sink       contract.EventSink

	// Verified is the identity proven at the handshake, empty when token
	// auth is disabled.
	Verified domain.UserID
}

func (c RegisterCommand) Conn() domain.ConnID { return c.Connection }

// sweepCommand asks the router to expire stale typing entries. Issued by
// the sweeper worker so expiry mutates the stores from the same stream as
// every other mutation.
type sweepCommand struct{}

func (sweepCommand) Conn() domain.ConnID { return "" }

// joinValidatedCommand re-enters the mailbox once the external room
// validation call has completed, so the suspending HTTP round-trip never
// stalls the event stream.
type joinValidatedCommand struct {
	Connection domain.ConnID
	Room       domain.RoomID
}

func (c joinValidatedCommand) Conn() domain.ConnID { return c.Connection }

// Router is the coordinator: a single goroutine drains the mailbox and is
// the sole writer of the registry, membership, presence and typing
// stores, so no two mutations ever interleave partially. It never
// persists anything; its state can be rebuilt from zero at restart with
// no loss beyond momentary presence/typing inconsistency.
type Router struct {
	log        *slog.Logger
	registry   contract.IRegistry
	membership contract.IMembership
	presence   contract.IPresence
	typing     contract.ITyping
	validator  contract.RoomValidator
	monitor    *observability.Monitor
	mailbox    chan domain.Command
}

func NewRouter(log *slog.Logger, registry contract.IRegistry,
	membership contract.IMembership, presence contract.IPresence,
	typing contract.ITyping, validator contract.RoomValidator,
	monitor *observability.Monitor, bufferSize int) *Router {
	return &Router{
		log:        log,
		registry:   registry,
		membership: membership,
		presence:   presence,
		typing:     typing,
		validator:  validator,
		monitor:    monitor,
		mailbox:    make(chan domain.Command, bufferSize),
	}
}

// Run drains the mailbox until the context is canceled.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Router stopping")
			return ctx.Err()
		case cmd := <-r.mailbox:
			r.handle(ctx, cmd)
		}
	}
}

// Dispatch submits a command without blocking. A full mailbox drops the
// command with a warning: advisory signals lost under pressure are
// preferable to a stalled read pump.
func (r *Router) Dispatch(cmd domain.Command) {
	select {
	case r.mailbox <- cmd:
	default:
		r.monitor.IncrCommandsDropped()
		r.log.Warn(fmt.Sprintf("Dropping %T from %s", cmd, cmd.Conn()),
			"error", errors.ErrMailboxFull)
	}
}

// Enqueue submits a lifecycle command, blocking until accepted. Register
// and disconnect must not be lost: a dropped disconnect would leave
// orphaned membership and stale presence behind.
func (r *Router) Enqueue(ctx context.Context, cmd domain.Command) error {
	select {
	case r.mailbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep schedules a typing expiry pass.
func (r *Router) Sweep() {
	r.Dispatch(sweepCommand{})
}

func (r *Router) handle(ctx context.Context, cmd domain.Command) {
	r.monitor.IncrEventsRouted()

	switch c := cmd.(type) {
	case RegisterCommand:
		r.registry.Register(c.Connection, c.Sink, c.Verified)
		r.monitor.IncrConnectionsOpened()

	case domain.UserOnlineCommand:
		r.handleUserOnline(ctx, c)

	case domain.UserOfflineCommand:
		r.handleUserOffline(ctx, c)

	case domain.JoinRoomCommand:
		r.handleJoinRoom(ctx, c)

	case joinValidatedCommand:
		// The connection may have disconnected while the validation call
		// was in flight; a dead ID must never enter a membership set,
		// since nothing would ever remove it again.
		if _, ok := r.registry.Identity(c.Connection); ok {
			r.membership.Join(c.Room, c.Connection)
		}

	case domain.LeaveRoomCommand:
		r.handleLeaveRoom(ctx, c)

	case domain.SendMessageCommand:
		r.handleSendMessage(ctx, c)

	case domain.TypingCommand:
		r.handleTyping(ctx, c)

	case domain.StopTypingCommand:
		r.handleStopTyping(ctx, c)

	case sweepCommand:
		r.handleSweep(ctx)

	case domain.DisconnectCommand:
		r.handleDisconnect(ctx, c)

	default:
		r.monitor.IncrProtocolErrors()
		r.log.Warn(fmt.Sprintf("Unhandled command %T", cmd))
	}
}

func (r *Router) handleUserOnline(ctx context.Context, c domain.UserOnlineCommand) {
	if verified, ok := r.registry.Verified(c.Connection); ok && verified != c.UserID {
		r.monitor.IncrProtocolErrors()
		r.log.Warn("Dropping user-online",
			"connection", c.Connection, "declared", c.UserID, "verified", verified,
			"error", errors.ErrIdentityMismatch)
		return
	}

	previous, announcedOffline, ok := r.registry.BindIdentity(c.Connection, c.UserID)
	if !ok {
		r.log.Debug("Dropping user-online",
			"connection", c.Connection, "error", errors.ErrUnknownConnection)
		return
	}

	// Rebinding moves the presence count from the old identity to the new
	// one so refcounts stay balanced. An identity that already announced
	// offline holds no count anymore, neither to release nor to keep.
	if previous != "" && previous != c.UserID && !announcedOffline {
		if r.presence.MarkOffline(previous) {
			r.broadcastStatus(ctx, previous, false)
		}
	}
	if previous == c.UserID && !announcedOffline {
		// Idempotent re-announce from the same connection.
		return
	}
	if r.presence.MarkOnline(c.UserID) {
		r.broadcastStatus(ctx, c.UserID, true)
	}
}

func (r *Router) handleUserOffline(ctx context.Context, c domain.UserOfflineCommand) {
	user, needsOffline := r.registry.AnnounceOffline(c.Connection)
	if !needsOffline {
		return
	}
	if c.UserID != user {
		r.log.Debug("user-offline payload ignored in favor of bound identity",
			"connection", c.Connection, "declared", c.UserID, "bound", user)
	}
	r.goOffline(ctx, user)
}

// goOffline decrements presence and, on the transition to zero, clears
// the user's typing entries and broadcasts the status change.
func (r *Router) goOffline(ctx context.Context, user domain.UserID) {
	if !r.presence.MarkOffline(user) {
		return
	}
	for _, room := range r.typing.ClearUser(user) {
		r.broadcastRoom(ctx, room, event.UserStopTyping{Room: room, UserID: user}, user)
	}
	r.broadcastStatus(ctx, user, false)
}

func (r *Router) handleJoinRoom(ctx context.Context, c domain.JoinRoomCommand) {
	user, ok := r.registry.Identity(c.Connection)
	if !ok {
		r.monitor.IncrProtocolErrors()
		r.log.Debug("Dropping join-room",
			"connection", c.Connection, "error", errors.ErrNotIdentified)
		return
	}

	if r.validator == nil {
		r.membership.Join(c.Room, c.Connection)
		return
	}

	// The external call may suspend; run it off the event stream and
	// re-dispatch the join once it resolves. Membership is then applied
	// against whatever the stores look like at that later point.
	go func() {
		if err := r.validator.ValidateJoin(ctx, user, c.Room); err != nil {
			r.log.Warn("Join rejected by room validation",
				"connection", c.Connection, "room", c.Room, "user", user, "error", err)
			return
		}
		r.Dispatch(joinValidatedCommand{Connection: c.Connection, Room: c.Room})
	}()
}

func (r *Router) handleLeaveRoom(ctx context.Context, c domain.LeaveRoomCommand) {
	r.membership.Leave(c.Room, c.Connection)

	// A leave also retires any typing indicator the user held in the room.
	if user, ok := r.registry.Identity(c.Connection); ok {
		if r.typing.StopTyping(c.Room, user) {
			r.broadcastRoom(ctx, c.Room, event.UserStopTyping{Room: c.Room, UserID: user}, user)
		}
	}
}

func (r *Router) handleSendMessage(ctx context.Context, c domain.SendMessageCommand) {
	if _, ok := r.registry.Identity(c.Connection); !ok {
		r.monitor.IncrProtocolErrors()
		r.log.Debug("Dropping send-message",
			"connection", c.Connection, "error", errors.ErrNotIdentified)
		return
	}

	// Freshly-read snapshot at dispatch time. An unknown room simply
	// yields zero recipients. The sender is excluded: its client already
	// holds the record from the persistence call.
	members := r.membership.MembersOf(domain.RoomID(c.Message.RoomID))
	targets := lo.Filter(members, func(id domain.ConnID, _ int) bool {
		return id != c.Connection
	})
	r.deliverAll(ctx, targets, event.NewMessage{Message: c.Message})
}

func (r *Router) handleTyping(ctx context.Context, c domain.TypingCommand) {
	user, ok := r.registry.Identity(c.Connection)
	if !ok {
		r.monitor.IncrProtocolErrors()
		r.log.Debug("Dropping typing",
			"connection", c.Connection, "error", errors.ErrNotIdentified)
		return
	}
	if c.UserID != "" && c.UserID != user {
		r.monitor.IncrProtocolErrors()
		r.log.Debug("Dropping typing for foreign identity",
			"connection", c.Connection, "declared", c.UserID, "bound", user,
			"error", errors.ErrIdentityMismatch)
		return
	}
	// Coalesced: keystrokes inside the window only refresh the deadline.
	if r.typing.StartTyping(c.Room, user) {
		r.broadcastRoom(ctx, c.Room, event.UserTyping{Room: c.Room, UserID: user}, user)
	}
}

func (r *Router) handleStopTyping(ctx context.Context, c domain.StopTypingCommand) {
	user, ok := r.registry.Identity(c.Connection)
	if !ok {
		r.monitor.IncrProtocolErrors()
		r.log.Debug("Dropping stop-typing",
			"connection", c.Connection, "error", errors.ErrNotIdentified)
		return
	}
	if r.typing.StopTyping(c.Room, user) {
		r.broadcastRoom(ctx, c.Room, event.UserStopTyping{Room: c.Room, UserID: user}, user)
	}
}

func (r *Router) handleSweep(ctx context.Context) {
	for _, entry := range r.typing.Expire() {
		r.broadcastRoom(ctx, entry.Room,
			event.UserStopTyping{Room: entry.Room, UserID: entry.User}, entry.User)
	}
}

// handleDisconnect runs the full cascade: membership removal, presence
// decrement, typing cleanup. This is the critical correctness path; a
// closed connection must leave no trace beyond its user possibly staying
// online through other connections.
func (r *Router) handleDisconnect(ctx context.Context, c domain.DisconnectCommand) {
	r.membership.RemoveConnection(c.Connection)

	user, needsOffline, existed := r.registry.Unregister(c.Connection)
	if !existed {
		return
	}
	r.monitor.IncrConnectionsClosed()
	if needsOffline {
		r.goOffline(ctx, user)
	}
}

func (r *Router) broadcastStatus(ctx context.Context, user domain.UserID, online bool) {
	evt := event.UserStatusChange{UserID: user, Status: online}
	r.deliverAll(ctx, r.registry.Snapshot(), evt)
}

// broadcastRoom delivers to the room's current members, excluding every
// connection bound to the excluded user (all the typer's tabs already
// know the typer is typing).
func (r *Router) broadcastRoom(ctx context.Context, room domain.RoomID, evt event.Event, exclude domain.UserID) {
	members := r.membership.MembersOf(room)
	targets := lo.Filter(members, func(id domain.ConnID, _ int) bool {
		user, ok := r.registry.Identity(id)
		return !ok || user != exclude
	})
	r.deliverAll(ctx, targets, evt)
}

func (r *Router) deliverAll(ctx context.Context, targets []domain.ConnID, evt event.Event) {
	for _, id := range targets {
		if r.registry.Deliver(ctx, id, evt) {
			r.monitor.IncrDelivered()
		} else {
			r.monitor.IncrDeliveryDropped()
		}
	}
}
