// Package notify delivers terminal job transitions to external consumers.
// Delivery is fire-and-forget: a failed notification never affects job state.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"pixvid/internal/scheduler"
)

// Notifier receives terminal job events.
type Notifier interface {
	Notify(ctx context.Context, ev scheduler.Event)
}

// LogNotifier just records terminal transitions. It is the fallback when no
// webhook endpoint is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev scheduler.Event) {
	n.Logger.Info().
		Str("job_id", ev.JobID).
		Str("user_id", ev.UserID).
		Str("status", string(ev.Status)).
		Str("error", ev.Error).
		Msg("notify: job finished")
}

// Pump forwards terminal events from the scheduler's feed to the notifier
// until ctx is done or the channel closes.
func Pump(ctx context.Context, events <-chan scheduler.Event, n Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Terminal() {
				n.Notify(ctx, ev)
			}
		}
	}
}
