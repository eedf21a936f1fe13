// Package observability aggregates process-wide relay counters. Counters
// are atomic so hot paths never contend; the telemetry worker reads a
// snapshot on its own schedule.
package observability

import "sync/atomic"

type Monitor struct {
	ConnectionsOpened uint64
	ConnectionsClosed uint64
	EventsRouted      uint64
	CommandsDropped   uint64
	Delivered         uint64
	DeliveryDropped   uint64
	ProtocolErrors    uint64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) IncrConnectionsOpened() { atomic.AddUint64(&m.ConnectionsOpened, 1) }
func (m *Monitor) IncrConnectionsClosed() { atomic.AddUint64(&m.ConnectionsClosed, 1) }
func (m *Monitor) IncrEventsRouted()      { atomic.AddUint64(&m.EventsRouted, 1) }
func (m *Monitor) IncrCommandsDropped()   { atomic.AddUint64(&m.CommandsDropped, 1) }
func (m *Monitor) IncrDelivered()         { atomic.AddUint64(&m.Delivered, 1) }
func (m *Monitor) IncrDeliveryDropped()   { atomic.AddUint64(&m.DeliveryDropped, 1) }
func (m *Monitor) IncrProtocolErrors()    { atomic.AddUint64(&m.ProtocolErrors, 1) }

// Stats is a point-in-time copy safe to log or serialize.
type Stats struct {
	ConnectionsOpened uint64 `json:"connections_opened"`
	ConnectionsClosed uint64 `json:"connections_closed"`
	EventsRouted      uint64 `json:"events_routed"`
	CommandsDropped   uint64 `json:"commands_dropped"`
	Delivered         uint64 `json:"delivered"`
	DeliveryDropped   uint64 `json:"delivery_dropped"`
	ProtocolErrors    uint64 `json:"protocol_errors"`
}

func (m *Monitor) GetLatest() Stats {
	return Stats{
		ConnectionsOpened: atomic.LoadUint64(&m.ConnectionsOpened),
		ConnectionsClosed: atomic.LoadUint64(&m.ConnectionsClosed),
		EventsRouted:      atomic.LoadUint64(&m.EventsRouted),
		CommandsDropped:   atomic.LoadUint64(&m.CommandsDropped),
		Delivered:         atomic.LoadUint64(&m.Delivered),
		DeliveryDropped:   atomic.LoadUint64(&m.DeliveryDropped),
		ProtocolErrors:    atomic.LoadUint64(&m.ProtocolErrors),
	}
}
