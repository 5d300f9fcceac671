package realtime

import (
	"context"
	"time"
)

// Poll calls fn immediately and then every interval until ctx is done. It is
// the polling substitute for a subscription: callers re-run their
// aggregation on each tick instead of on each event.
func Poll(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}
