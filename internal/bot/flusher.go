package bot

import (
	"context"
	"log/slog"
	"time"
)

// Flusher persists buffered state. *store.Table satisfies it.
type Flusher interface {
	Flush() error
}

// RunFlusher calls f.Flush every interval until ctx is done. Failures are
// logged and retried on the next tick.
func RunFlusher(ctx context.Context, interval time.Duration, f Flusher) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Flush(); err != nil {
				slog.Error("periodic flush failed", "err", err)
			}
		}
	}
}
