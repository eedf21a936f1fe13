package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Telemetry logs a relay counter snapshot plus process self-stats (RSS,
// CPU) on a fixed interval.
type Telemetry struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	interval time.Duration
	liveConn func() int
}

func NewTelemetry(log *slog.Logger, monitor *observability.Monitor,
	interval time.Duration, liveConn func() int) *Telemetry {
	return &Telemetry{log: log, monitor: monitor, interval: interval, liveConn: liveConn}
}

func (w *Telemetry) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			stats := w.monitor.GetLatest()
			w.log.Info("Relay stats",
				"live_connections", w.liveConn(),
				"opened", stats.ConnectionsOpened,
				"closed", stats.ConnectionsClosed,
				"routed", stats.EventsRouted,
				"delivered", stats.Delivered,
				"delivery_dropped", stats.DeliveryDropped,
				"commands_dropped", stats.CommandsDropped,
				"protocol_errors", stats.ProtocolErrors,
				"ram_bytes", rss,
				"cpu_percent", cpu,
			)
		}
	}
}

// getSelfStats retrieves technical metrics (Memory and CPU) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
