package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pixvid/internal/domain"
	"pixvid/internal/infra"
	"pixvid/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	db infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(db infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{db: db}
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, sqlinline.QSelectUserByID, id)
	return scanUser(row)
}

// GetByEmail fetches a user by email address.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, sqlinline.QSelectUserByEmail, email)
	return scanUser(row)
}

// ConsumeCredit records one finished video. The credit counter only moves for
// free accounts; the lifetime video counter moves for everyone. Both updates
// ride the same statement so concurrent completions cannot under-count.
func (r *UserRepositoryPG) ConsumeCredit(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QConsumeCredit, userID)
	if err != nil {
		return fmt.Errorf("consume credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetWeeklyCredits zeroes the weekly credit counter.
func (r *UserRepositoryPG) ResetWeeklyCredits(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QResetWeeklyCredits, userID)
	if err != nil {
		return fmt.Errorf("reset credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetPlan changes the user's subscription tier.
func (r *UserRepositoryPG) SetPlan(ctx context.Context, userID string, plan domain.Plan) error {
	tag, err := r.db.Exec(ctx, sqlinline.QSetUserPlan, userID, string(plan))
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		plan string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &plan, &u.CreditsUsed, &u.TotalVideos, &u.Preferences, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.Plan = domain.Plan(plan)
	return &u, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
