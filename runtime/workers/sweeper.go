package workers

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically asks the router to expire stale typing entries.
// The sweep itself runs inside the router's event stream; this worker is
// only the clock. The indicator self-heals within window + interval even
// when a client disconnects without an explicit stop-typing.
type Sweeper struct {
	log      *slog.Logger
	interval time.Duration
	sweep    func()
}

func NewSweeper(log *slog.Logger, interval time.Duration, sweep func()) *Sweeper {
	return &Sweeper{log: log, interval: interval, sweep: sweep}
}

func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping typing sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.sweep()
		}
	}
}
