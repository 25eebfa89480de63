package domain

import "context"

// JobRepository defines persistence for job records. The scheduler writes
// snapshots through it and reloads unfinished work on startup.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	UpdateSnapshot(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Job, error)
	ListUnfinished(ctx context.Context) ([]*Job, error)
}

// UserRepository defines access to account and credit state. ConsumeCredit
// must apply the credit increment and the video counter atomically so two
// concurrent completions cannot under-count.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	ConsumeCredit(ctx context.Context, userID string) error
	ResetWeeklyCredits(ctx context.Context, userID string) error
	SetPlan(ctx context.Context, userID string, plan Plan) error
}
