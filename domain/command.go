package domain

// Command is an inbound intent routed through the coordinator mailbox.
// Every command carries the originating connection so per-connection
// ordering follows from the read pump submitting sequentially.
type Command interface {
	Conn() ConnID
}

type UserOnlineCommand struct {
	Connection ConnID
	UserID     UserID
}

func (c UserOnlineCommand) Conn() ConnID { return c.Connection }

type UserOfflineCommand struct {
	Connection ConnID
	UserID     UserID
}

func (c UserOfflineCommand) Conn() ConnID { return c.Connection }

type JoinRoomCommand struct {
	Connection ConnID
	Room       RoomID
}

func (c JoinRoomCommand) Conn() ConnID { return c.Connection }

type LeaveRoomCommand struct {
	Connection ConnID
	Room       RoomID
}

func (c LeaveRoomCommand) Conn() ConnID { return c.Connection }

// SendMessageCommand carries a record already persisted by the external
// API. The relay only resolves the fan-out set and delivers.
type SendMessageCommand struct {
	Connection ConnID
	Message    Message
}

func (c SendMessageCommand) Conn() ConnID { return c.Connection }

type TypingCommand struct {
	Connection ConnID
	UserID     UserID
	Room       RoomID
}

func (c TypingCommand) Conn() ConnID { return c.Connection }

type StopTypingCommand struct {
	Connection ConnID
	UserID     UserID
	Room       RoomID
}

func (c StopTypingCommand) Conn() ConnID { return c.Connection }

// DisconnectCommand is terminal: it triggers the full cascade cleanup of
// membership, presence and typing state for the connection.
type DisconnectCommand struct {
	Connection ConnID
}

func (c DisconnectCommand) Conn() ConnID { return c.Connection }
