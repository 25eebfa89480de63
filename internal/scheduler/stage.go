package scheduler

import (
	"context"
	"errors"
	"fmt"

	"pixvid/internal/domain"
)

// ProgressFn reports intra-stage completion as a fraction in [0,1].
type ProgressFn func(fraction float64)

// Stage is one named unit of work in the rendering pipeline. Real media
// processing plugs in here without touching the state machine around it.
type Stage interface {
	Name() string
	Run(ctx context.Context, job *domain.Job, report ProgressFn) error
}

// WeightedStage pairs a stage with its expected relative duration weight.
type WeightedStage struct {
	Stage  Stage
	Weight int
}

// StageProvider builds the ordered stage plan for a job. Weights may depend
// on the job (reference conditioning is cheap when no references exist).
type StageProvider interface {
	Stages(job *domain.Job) []WeightedStage
}

// ErrCancelled is returned by the stage runner when a cancellation request
// was observed at a stage boundary.
var ErrCancelled = errors.New("job cancelled")

// StageError records which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageRunner drives a job through its stage plan in declared order with no
// skipping. Progress across the whole plan is monotonic; cancellation is
// honored only at stage boundaries.
type StageRunner struct {
	Stages     []WeightedStage
	OnStage    func(name string)
	OnProgress func(percent int)
	Cancelled  func() bool
}

// Run executes every stage in order. It returns nil when all stages complete,
// ErrCancelled when a cancellation request was seen at a boundary, the
// context error on shutdown, or a *StageError on stage failure.
func (r *StageRunner) Run(ctx context.Context, job *domain.Job) error {
	total := 0
	for _, ws := range r.Stages {
		total += ws.Weight
	}
	if total <= 0 {
		return fmt.Errorf("stage plan is empty")
	}

	done := 0
	last := 0
	emit := func(pct int) {
		if pct > 100 {
			pct = 100
		}
		if pct <= last {
			return
		}
		last = pct
		if r.OnProgress != nil {
			r.OnProgress(pct)
		}
	}

	for _, ws := range r.Stages {
		if r.Cancelled != nil && r.Cancelled() {
			return ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.OnStage != nil {
			r.OnStage(ws.Stage.Name())
		}
		weight := ws.Weight
		base := done
		report := func(fraction float64) {
			if fraction < 0 {
				fraction = 0
			}
			if fraction > 1 {
				fraction = 1
			}
			emit((base*100 + int(fraction*float64(weight)*100)) / total)
		}
		if err := ws.Stage.Run(ctx, job, report); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return &StageError{Stage: ws.Stage.Name(), Err: err}
		}
		done += weight
		emit(done * 100 / total)
	}
	return nil
}
