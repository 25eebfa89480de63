package scheduler

import (
	"fmt"

	"pixvid/internal/domain"
)

// Admit decides whether requested new jobs may enter the queue on the credit
// axis. reserved counts credits already held by the user's queued and
// in-flight jobs, so two near-simultaneous submissions cannot both pass on a
// stale creditsUsed snapshot. Concurrency quota is enforced at dispatch, not
// here: an admitted job may still wait in the queue.
func Admit(plan domain.Plan, creditsUsed, reserved, requested int) error {
	if requested <= 0 {
		return fmt.Errorf("%w: nothing to submit", domain.ErrInvalidJobRequest)
	}
	features := plan.Features()
	if features.MaxCredits == domain.UnlimitedCredits {
		return nil
	}
	remaining := features.MaxCredits - creditsUsed - reserved
	if remaining < 0 {
		remaining = 0
	}
	if requested > remaining {
		return fmt.Errorf("%w: %d requested, %d remaining", domain.ErrInsufficientCredits, requested, remaining)
	}
	return nil
}
