package ws

import (
	"chat-relay/domain/event"
	"context"
	"errors"
)

var errSinkFull = errors.New("connection sink buffer full")

// Sink is one connection's outbound lane: the router consumes into it,
// the write pump drains it. Consume never blocks the fan-out loop; a
// full buffer drops the event and reports it so delivery stays
// best-effort per connection.
type Sink struct {
	events chan event.Event
}

func NewSink(bufferSize int) *Sink {
	return &Sink{events: make(chan event.Event, bufferSize)}
}

// Consume is called by the router's fan-out.
// Redirect the event through the concerned owner of the channel;
// the write pump will take it from now.
func (s *Sink) Consume(ctx context.Context, e event.Event) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errSinkFull
	}
}

func (s *Sink) Events() <-chan event.Event {
	return s.events
}
