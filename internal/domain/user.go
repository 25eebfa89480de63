package domain

import "time"

// UserPreferences holds rendering defaults a user can persist.
type UserPreferences struct {
	DefaultMotion      MotionType `json:"default_motion"`
	DefaultAspectRatio string     `json:"default_aspect_ratio"`
	AutoEnhancePrompt  bool       `json:"auto_enhance_prompt"`
}

// User represents an authenticated account within the platform.
type User struct {
	ID          string
	Email       string
	Name        string
	Plan        Plan
	CreditsUsed int
	TotalVideos int
	Preferences UserPreferences
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsFree reports whether the user is on the free plan.
func (u User) IsFree() bool {
	return u.Plan == PlanFree
}

// RemainingCredits returns the weekly credits still available, or
// UnlimitedCredits for paid plans.
func (u User) RemainingCredits() int {
	f := u.Plan.Features()
	if f.MaxCredits == UnlimitedCredits {
		return UnlimitedCredits
	}
	remaining := f.MaxCredits - u.CreditsUsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
