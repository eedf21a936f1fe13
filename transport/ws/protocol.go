// Package ws carries the relay's WebSocket transport: handshake,
// read/write pumps, and the wire protocol. The protocol is a closed set
// of tagged variants, one per event name, validated at this boundary so
// nothing loosely-shaped ever reaches the router.
package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	apperrors "chat-relay/errors"
)

var validate = validator.New()

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

type userPayload struct {
	UserID string `json:"userId" validate:"required"`
}

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type typingPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId" validate:"required"`
}

// DecodeCommand turns a raw inbound frame into a router command.
// Malformed frames and unknown event names are reported, never partially
// applied; the caller drops them.
func DecodeCommand(id domain.ConnID, raw []byte) (domain.Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayload, err)
	}

	switch env.Event {
	case "user-online":
		p, err := decodePayload[userPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return domain.UserOnlineCommand{Connection: id, UserID: domain.UserID(p.UserID)}, nil

	case "user-offline":
		p, err := decodePayload[userPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return domain.UserOfflineCommand{Connection: id, UserID: domain.UserID(p.UserID)}, nil

	case "join-room":
		p, err := decodePayload[roomPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return domain.JoinRoomCommand{Connection: id, Room: domain.RoomID(p.RoomID)}, nil

	case "leave-room":
		p, err := decodePayload[roomPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return domain.LeaveRoomCommand{Connection: id, Room: domain.RoomID(p.RoomID)}, nil

	case "send-message":
		p, err := decodePayload[domain.Message](env.Data)
		if err != nil {
			return nil, err
		}
		return domain.SendMessageCommand{Connection: id, Message: p}, nil

	case "typing":
		p, err := decodePayload[typingPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return domain.TypingCommand{
			Connection: id,
			UserID:     domain.UserID(p.UserID),
			Room:       domain.RoomID(p.RoomID),
		}, nil

	case "stop-typing":
		p, err := decodePayload[typingPayload](env.Data)
		if err != nil {
			return nil, err
		}
		return domain.StopTypingCommand{
			Connection: id,
			UserID:     domain.UserID(p.UserID),
			Room:       domain.RoomID(p.RoomID),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEvent, env.Event)
	}
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: missing data", apperrors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayload, err)
	}
	return p, nil
}

type statusPayload struct {
	UserID string `json:"userId"`
	Status bool   `json:"status"`
}

type typerPayload struct {
	UserID string `json:"userId"`
}

// EncodeEvent frames an outbound event. Room scoping is implicit for
// typing indicators: the frame only reaches members of the room.
func EncodeEvent(e event.Event) ([]byte, error) {
	var data any
	switch evt := e.(type) {
	case event.NewMessage:
		data = evt.Message
	case event.UserStatusChange:
		data = statusPayload{UserID: string(evt.UserID), Status: evt.Status}
	case event.UserTyping:
		data = typerPayload{UserID: string(evt.UserID)}
	case event.UserStopTyping:
		data = typerPayload{UserID: string(evt.UserID)}
	default:
		return nil, stderrors.New("unencodable event")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.EventName(), Data: payload})
}
