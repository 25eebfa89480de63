package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pixvid/internal/domain"
)

// DispatchGate can veto starting new work, e.g. when the host is saturated.
// Vetoed jobs simply stay queued; a later tick picks them up.
type DispatchGate interface {
	Allow() bool
}

// JobRequest describes one conversion to submit.
type JobRequest struct {
	SourceAssetKey string
	ReferenceKeys  []string
	Settings       domain.JobSettings
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	MaxRetries   int
	TickInterval time.Duration
}

const defaultTickInterval = 2 * time.Second

// Engine owns the job table and dispatch accounting. All queue mutation and
// slot bookkeeping happens under one mutex; job stages run on their own
// goroutines and re-enter through the terminal-transition paths, each of
// which re-invokes the dispatch tick.
type Engine struct {
	mu              sync.Mutex
	jobs            map[string]*domain.Job
	seq             []string
	users           map[string]*userState
	reserved        map[string]struct{}
	cancelRequested map[string]struct{}

	stages   StageProvider
	repo     domain.JobRepository
	accounts domain.UserRepository
	gate     DispatchGate
	logger   zerolog.Logger

	maxRetries   int
	tickInterval time.Duration

	subs    map[int]chan Event
	nextSub int
	dropped int

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

type userState struct {
	plan     domain.Plan
	policy   domain.BatchPolicy
	inflight int
	reserved int
}

// New constructs an engine. repo may be nil for fully in-memory operation;
// gate may be nil to dispatch unconditionally.
func New(cfg Config, stages StageProvider, accounts domain.UserRepository, repo domain.JobRepository, gate DispatchGate, logger zerolog.Logger) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = domain.MaxRetries
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		jobs:            make(map[string]*domain.Job),
		users:           make(map[string]*userState),
		reserved:        make(map[string]struct{}),
		cancelRequested: make(map[string]struct{}),
		stages:          stages,
		repo:            repo,
		accounts:        accounts,
		gate:            gate,
		logger:          logger,
		maxRetries:      cfg.MaxRetries,
		tickInterval:    cfg.TickInterval,
		subs:            make(map[int]chan Event),
		baseCtx:         ctx,
		stop:            cancel,
	}
}

// Submit admits and enqueues one job per request for the given user. The
// account snapshot is refreshed per admission check. For the free tier a
// credit is reserved per accepted job and only charged on terminal success.
func (e *Engine) Submit(ctx context.Context, userID string, reqs []JobRequest) ([]string, error) {
	user, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	features := user.Plan.Features()
	for _, req := range reqs {
		if strings.TrimSpace(req.SourceAssetKey) == "" {
			return nil, fmt.Errorf("%w: source asset is required", domain.ErrInvalidJobRequest)
		}
		if len(req.ReferenceKeys) > 0 && !features.CanUseReferences {
			return nil, fmt.Errorf("%w: reference images require a paid plan", domain.ErrInvalidJobRequest)
		}
		if err := domain.ValidateSettings(req.Settings, features); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("scheduler is shut down")
	}
	us := e.userStateLocked(userID, user.Plan)
	if err := Admit(user.Plan, user.CreditsUsed, us.reserved, len(reqs)); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	now := time.Now().UTC()
	ids := make([]string, 0, len(reqs))
	created := make([]*domain.Job, 0, len(reqs))
	for i, req := range reqs {
		job := &domain.Job{
			ID:             uuid.NewString(),
			UserID:         userID,
			SourceAssetKey: req.SourceAssetKey,
			ReferenceKeys:  append([]string(nil), req.ReferenceKeys...),
			Settings:       req.Settings,
			Status:         domain.JobStatusQueued,
			// Jobs in one batch get strictly increasing timestamps so FIFO
			// ordering reflects submission order.
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		}
		e.jobs[job.ID] = job
		e.seq = append(e.seq, job.ID)
		if user.IsFree() {
			us.reserved++
			e.reserved[job.ID] = struct{}{}
		}
		us.policy = req.Settings.BatchPolicy
		ids = append(ids, job.ID)
		created = append(created, job.Clone())
		e.publish(Event{Type: EventQueued, JobID: job.ID, UserID: userID, Status: job.Status})
	}
	e.mu.Unlock()

	if e.repo != nil {
		for _, job := range created {
			if err := e.repo.Create(ctx, job); err != nil {
				e.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: persist new job failed")
			}
		}
	}

	e.mu.Lock()
	e.tickLocked(userID)
	e.mu.Unlock()
	return ids, nil
}

// Cancel removes a queued job immediately or flags a processing job for
// cancellation at the next stage boundary.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrNotFound
	}
	switch job.Status {
	case domain.JobStatusQueued:
		job.Status = domain.JobStatusCancelled
		job.CurrentStage = ""
		e.releaseReservationLocked(job)
		e.publish(Event{Type: EventCancelled, JobID: job.ID, UserID: job.UserID, Status: job.Status, Progress: job.Progress})
		snapshot := job.Clone()
		e.mu.Unlock()
		e.persist(ctx, snapshot)
		return nil
	case domain.JobStatusProcessing:
		e.cancelRequested[jobID] = struct{}{}
		e.mu.Unlock()
		return nil
	default:
		e.mu.Unlock()
		return domain.ErrAlreadyTerminal
	}
}

// Retry is the manual path back from terminal failure: an explicit
// re-submission that resets the retry budget and re-enters admission.
func (e *Engine) Retry(ctx context.Context, jobID string) error {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusFailed {
		e.mu.Unlock()
		if job.Status.Terminal() {
			return domain.ErrAlreadyTerminal
		}
		return fmt.Errorf("%w: job is %s, only failed jobs can be retried", domain.ErrInvalidJobRequest, job.Status)
	}
	userID := job.UserID
	e.mu.Unlock()

	user, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	e.mu.Lock()
	job, ok = e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusFailed {
		status := job.Status
		e.mu.Unlock()
		if status.Terminal() {
			return domain.ErrAlreadyTerminal
		}
		return fmt.Errorf("%w: job is %s, only failed jobs can be retried", domain.ErrInvalidJobRequest, status)
	}
	us := e.userStateLocked(userID, user.Plan)
	if _, held := e.reserved[jobID]; !held && user.IsFree() {
		if err := Admit(user.Plan, user.CreditsUsed, us.reserved, 1); err != nil {
			e.mu.Unlock()
			return err
		}
		us.reserved++
		e.reserved[jobID] = struct{}{}
	}
	job.Status = domain.JobStatusQueued
	job.RetryCount = 0
	job.Progress = 0
	job.ErrorMessage = ""
	job.CurrentStage = ""
	job.StartedAt = nil
	e.publish(Event{Type: EventRequeued, JobID: job.ID, UserID: job.UserID, Status: job.Status})
	snapshot := job.Clone()
	e.tickLocked(userID)
	e.mu.Unlock()

	e.persist(ctx, snapshot)
	return nil
}

// GetStatus returns a snapshot of a job known to the scheduler.
func (e *Engine) GetStatus(jobID string) (*domain.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// ListPending returns snapshots of all queued jobs in submission order.
func (e *Engine) ListPending() []*domain.Job {
	return e.listByStatus(domain.JobStatusQueued)
}

// ListInFlight returns snapshots of all processing jobs in submission order.
func (e *Engine) ListInFlight() []*domain.Job {
	return e.listByStatus(domain.JobStatusProcessing)
}

func (e *Engine) listByStatus(status domain.JobStatus) []*domain.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.Job
	for _, id := range e.seq {
		if job := e.jobs[id]; job != nil && job.Status == status {
			out = append(out, job.Clone())
		}
	}
	return out
}

// Restore reloads unfinished jobs from the repository after a restart. Jobs
// that were mid-processing go back to queued with progress 0 and no retry
// consumed, since the in-flight work is lost.
func (e *Engine) Restore(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	jobs, err := e.repo.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("restore jobs: %w", err)
	}
	plans := make(map[string]domain.Plan)
	demoted := make([]*domain.Job, 0)

	e.mu.Lock()
	for _, job := range jobs {
		if _, exists := e.jobs[job.ID]; exists {
			continue
		}
		if job.Status == domain.JobStatusProcessing {
			job.Status = domain.JobStatusQueued
			job.Progress = 0
			job.CurrentStage = ""
			job.StartedAt = nil
			demoted = append(demoted, job.Clone())
		}
		e.jobs[job.ID] = job
		e.seq = append(e.seq, job.ID)
		plans[job.UserID] = ""
	}
	e.mu.Unlock()

	for userID := range plans {
		user, err := e.accounts.GetByID(ctx, userID)
		if err != nil {
			e.logger.Warn().Err(err).Str("user_id", userID).Msg("scheduler: restore account lookup failed")
			continue
		}
		plans[userID] = user.Plan
	}

	e.mu.Lock()
	for userID, plan := range plans {
		if plan == "" {
			plan = domain.PlanFree
		}
		us := e.userStateLocked(userID, plan)
		if plan == domain.PlanFree {
			for _, id := range e.seq {
				job := e.jobs[id]
				if job.UserID != userID || job.Status.Terminal() {
					continue
				}
				if _, held := e.reserved[id]; !held {
					us.reserved++
					e.reserved[id] = struct{}{}
				}
			}
		}
		e.tickLocked(userID)
	}
	e.mu.Unlock()

	for _, job := range demoted {
		e.persist(ctx, job)
	}
	return nil
}

// Run drives periodic dispatch ticks until ctx is done. The periodic tick
// guarantees liveness when a dispatch gate temporarily vetoed work.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.baseCtx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick re-evaluates dispatch for every known user. Redundant invocations are
// harmless: free capacity is recomputed from the live in-flight count.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for userID := range e.users {
		e.tickLocked(userID)
	}
}

// Close stops accepting work, cancels in-flight stages, and waits for job
// goroutines up to timeout.
func (e *Engine) Close(timeout time.Duration) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: shutdown timed out after %v", timeout)
	}
}

// tickLocked is the dispatcher: it recomputes free capacity from the live
// in-flight count and starts jobs from the ordered pending set. Safe to call
// redundantly; with no capacity or no pending work it is a no-op.
func (e *Engine) tickLocked(userID string) {
	if e.closed {
		return
	}
	us, ok := e.users[userID]
	if !ok {
		return
	}
	capacity := us.plan.Features().MaxConcurrentJobs
	free := capacity - us.inflight
	if free <= 0 {
		return
	}
	if e.gate != nil && !e.gate.Allow() {
		return
	}

	var pending []*domain.Job
	for _, id := range e.seq {
		if job := e.jobs[id]; job != nil && job.UserID == userID && job.Status == domain.JobStatusQueued {
			pending = append(pending, job)
		}
	}
	if len(pending) == 0 {
		return
	}

	for _, job := range Order(pending, us.policy) {
		if free <= 0 {
			break
		}
		e.startLocked(job, us)
		free--
	}
}

func (e *Engine) startLocked(job *domain.Job, us *userState) {
	now := time.Now().UTC()
	job.Status = domain.JobStatusProcessing
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	us.inflight++
	e.publish(Event{Type: EventStarted, JobID: job.ID, UserID: job.UserID, Status: job.Status, Progress: job.Progress, RetryCount: job.RetryCount})
	snapshot := job.Clone()
	e.wg.Add(1)
	go e.runJob(job.ID, snapshot)
}

func (e *Engine) runJob(jobID string, job *domain.Job) {
	defer e.wg.Done()

	e.persist(e.baseCtx, job)

	runner := &StageRunner{
		Stages: e.stages.Stages(job),
		OnStage: func(name string) {
			e.setStage(jobID, name)
		},
		OnProgress: func(pct int) {
			e.setProgress(jobID, pct)
		},
		Cancelled: func() bool {
			e.mu.Lock()
			defer e.mu.Unlock()
			_, flagged := e.cancelRequested[jobID]
			return flagged
		},
	}

	err := runner.Run(e.baseCtx, job)
	switch {
	case err == nil:
		e.completeJob(jobID, job.ResultKey)
	case errors.Is(err, ErrCancelled):
		e.finishCancelled(jobID)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		e.requeueOnShutdown(jobID)
	default:
		// A cancellation requested while the failing stage ran wins over the
		// retry coordinator: the job ends cancelled and consumes no retry.
		e.mu.Lock()
		_, flagged := e.cancelRequested[jobID]
		e.mu.Unlock()
		if flagged {
			e.finishCancelled(jobID)
		} else {
			e.handleFailure(jobID, err)
		}
	}
}

func (e *Engine) setStage(jobID, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing {
		return
	}
	job.CurrentStage = name
	e.publish(Event{Type: EventStage, JobID: job.ID, UserID: job.UserID, Status: job.Status, Progress: job.Progress, Stage: name})
}

// setProgress only mutates progress while the job is processing, and never
// lets it regress.
func (e *Engine) setProgress(jobID string, pct int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing || pct <= job.Progress {
		return
	}
	job.Progress = pct
	e.publish(Event{Type: EventProgress, JobID: job.ID, UserID: job.UserID, Status: job.Status, Progress: pct, Stage: job.CurrentStage})
}

func (e *Engine) completeJob(jobID, resultKey string) {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.CurrentStage = ""
	job.ResultKey = resultKey
	job.CompletedAt = &now
	us := e.userStateLocked(job.UserID, "")
	us.inflight--
	delete(e.cancelRequested, jobID)
	e.publish(Event{Type: EventCompleted, JobID: job.ID, UserID: job.UserID, Status: job.Status, Progress: 100})
	snapshot := job.Clone()
	e.mu.Unlock()

	// Credit consumption is charged only now, on terminal success. The repo
	// applies the free-tier credit and the video counter in one statement.
	// The reservation is released only after the charge lands: a concurrent
	// admission must see either the reservation or the committed charge,
	// never neither.
	if err := e.accounts.ConsumeCredit(e.baseCtx, snapshot.UserID); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error().Err(err).Str("user_id", snapshot.UserID).Msg("scheduler: credit consumption failed")
	}

	e.mu.Lock()
	e.releaseReservationLocked(job)
	e.tickLocked(snapshot.UserID)
	e.mu.Unlock()

	e.persist(e.baseCtx, snapshot)
}

func (e *Engine) handleFailure(jobID string, cause error) {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return
	}
	us := e.userStateLocked(job.UserID, "")
	us.inflight--
	delete(e.cancelRequested, jobID)

	if DecideRetry(job.RetryCount, e.maxRetries) == Requeue {
		job.RetryCount++
		job.Status = domain.JobStatusQueued
		job.Progress = 0
		job.CurrentStage = ""
		job.ErrorMessage = ""
		job.StartedAt = nil
		e.publish(Event{Type: EventRequeued, JobID: job.ID, UserID: job.UserID, Status: job.Status, Error: cause.Error(), RetryCount: job.RetryCount})
	} else {
		job.Status = domain.JobStatusFailed
		job.CurrentStage = ""
		job.ErrorMessage = fmt.Sprintf("%v: %v", domain.ErrRetriesExhausted, cause)
		e.releaseReservationLocked(job)
		e.publish(Event{Type: EventFailed, JobID: job.ID, UserID: job.UserID, Status: job.Status, Progress: job.Progress, Error: job.ErrorMessage, RetryCount: job.RetryCount})
	}
	snapshot := job.Clone()
	e.mu.Unlock()

	e.persist(e.baseCtx, snapshot)

	e.mu.Lock()
	e.tickLocked(snapshot.UserID)
	e.mu.Unlock()
}

func (e *Engine) finishCancelled(jobID string) {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return
	}
	job.Status = domain.JobStatusCancelled
	job.CurrentStage = ""
	us := e.userStateLocked(job.UserID, "")
	us.inflight--
	e.releaseReservationLocked(job)
	delete(e.cancelRequested, jobID)
	e.publish(Event{Type: EventCancelled, JobID: job.ID, UserID: job.UserID, Status: job.Status, Progress: job.Progress})
	snapshot := job.Clone()
	e.mu.Unlock()

	e.persist(e.baseCtx, snapshot)

	e.mu.Lock()
	e.tickLocked(snapshot.UserID)
	e.mu.Unlock()
}

// requeueOnShutdown puts an interrupted job back to queued without consuming
// a retry, so Restore can pick it up on the next boot.
func (e *Engine) requeueOnShutdown(jobID string) {
	e.mu.Lock()
	job, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		return
	}
	job.Status = domain.JobStatusQueued
	job.Progress = 0
	job.CurrentStage = ""
	job.StartedAt = nil
	us := e.userStateLocked(job.UserID, "")
	us.inflight--
	snapshot := job.Clone()
	e.mu.Unlock()

	e.persist(context.Background(), snapshot)
}

func (e *Engine) userStateLocked(userID string, plan domain.Plan) *userState {
	us, ok := e.users[userID]
	if !ok {
		us = &userState{plan: domain.PlanFree, policy: domain.BatchParallel}
		e.users[userID] = us
	}
	if plan != "" {
		us.plan = plan
	}
	return us
}

func (e *Engine) releaseReservationLocked(job *domain.Job) {
	if _, held := e.reserved[job.ID]; !held {
		return
	}
	delete(e.reserved, job.ID)
	if us, ok := e.users[job.UserID]; ok && us.reserved > 0 {
		us.reserved--
	}
}

func (e *Engine) persist(ctx context.Context, job *domain.Job) {
	if e.repo == nil {
		return
	}
	if err := e.repo.UpdateSnapshot(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: persist snapshot failed")
	}
}
