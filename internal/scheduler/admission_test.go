package scheduler

import (
	"errors"
	"testing"

	"pixvid/internal/domain"
)

func TestAdmit(t *testing.T) {
	tests := []struct {
		name        string
		plan        domain.Plan
		creditsUsed int
		reserved    int
		requested   int
		wantErr     error
	}{
		{"free within allowance", domain.PlanFree, 0, 0, 2, nil},
		{"free exceeds allowance", domain.PlanFree, 0, 0, 3, domain.ErrInsufficientCredits},
		{"free partially used", domain.PlanFree, 1, 0, 2, domain.ErrInsufficientCredits},
		{"free reservation counts", domain.PlanFree, 0, 2, 1, domain.ErrInsufficientCredits},
		{"free over-consumed clamps", domain.PlanFree, 5, 0, 1, domain.ErrInsufficientCredits},
		{"paid unlimited", domain.PlanProMonthly, 999, 0, 50, nil},
		{"pro plus unlimited", domain.PlanProPlusAnnual, 0, 10, 10, nil},
		{"zero requested", domain.PlanProMonthly, 0, 0, 0, domain.ErrInvalidJobRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Admit(tc.plan, tc.creditsUsed, tc.reserved, tc.requested)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Admit() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Admit() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
