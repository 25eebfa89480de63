package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pixvid/internal/adapter/repo"
	"pixvid/internal/domain"
	"pixvid/internal/infra"
)

func main() {
	var (
		idFlag    string
		emailFlag string
		planFlag  string
		resetFlag bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.StringVar(&planFlag, "plan", "", "plan to assign (free, pro_monthly, pro_annual, pro_plus_monthly, pro_plus_annual)")
	flag.BoolVar(&resetFlag, "reset-credits", false, "reset the weekly credit counter to 0")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	plan := domain.Plan(strings.TrimSpace(strings.ToLower(planFlag)))

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if plan == "" && !resetFlag {
		exitWithError(errors.New("nothing to do: pass -plan and/or -reset-credits"))
	}
	if plan != "" && !plan.Valid() {
		exitWithError(fmt.Errorf("unsupported plan %q", plan))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "planctl").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	users := repo.NewUserRepository(runner)

	user, err := lookupUser(ctx, users, userID, email)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	if plan != "" {
		if err := users.SetPlan(ctx, user.ID, plan); err != nil {
			exitWithError(fmt.Errorf("failed to set plan: %w", err))
		}
	}
	if resetFlag {
		if err := users.ResetWeeklyCredits(ctx, user.ID); err != nil {
			exitWithError(fmt.Errorf("failed to reset credits: %w", err))
		}
	}

	updated, err := users.GetByID(ctx, user.ID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to reload user: %w", err))
	}
	f := updated.Plan.Features()
	fmt.Printf("User %s (%s) on plan %s\n", updated.ID, updated.Email, updated.Plan)
	fmt.Printf("credits_used=%d remaining=%d total_videos=%d\n", updated.CreditsUsed, updated.RemainingCredits(), updated.TotalVideos)
	fmt.Printf("concurrency=%d max_quality=%s watermark=%t\n", f.MaxConcurrentJobs, f.MaxQuality, f.HasWatermark)
}

func lookupUser(ctx context.Context, users *repo.UserRepositoryPG, userID, email string) (*domain.User, error) {
	if userID != "" {
		return users.GetByID(ctx, userID)
	}
	return users.GetByEmail(ctx, email)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
