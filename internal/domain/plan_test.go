package domain

import "testing"

func TestPlanFeatures(t *testing.T) {
	tests := []struct {
		plan       Plan
		concurrent int
		credits    int
		quality    Quality
	}{
		{PlanFree, 1, 2, QualityHD},
		{PlanProMonthly, 3, UnlimitedCredits, QualityFHD},
		{PlanProAnnual, 3, UnlimitedCredits, QualityFHD},
		{PlanProPlusMonthly, 5, UnlimitedCredits, Quality4K},
		{PlanProPlusAnnual, 5, UnlimitedCredits, Quality4K},
	}
	for _, tc := range tests {
		t.Run(string(tc.plan), func(t *testing.T) {
			f := tc.plan.Features()
			if f.MaxConcurrentJobs != tc.concurrent {
				t.Fatalf("MaxConcurrentJobs = %d, want %d", f.MaxConcurrentJobs, tc.concurrent)
			}
			if f.MaxCredits != tc.credits {
				t.Fatalf("MaxCredits = %d, want %d", f.MaxCredits, tc.credits)
			}
			if f.MaxQuality != tc.quality {
				t.Fatalf("MaxQuality = %q, want %q", f.MaxQuality, tc.quality)
			}
		})
	}
}

func TestUnknownPlanFallsBackToFree(t *testing.T) {
	f := Plan("enterprise").Features()
	if f.MaxConcurrentJobs != 1 || f.MaxCredits != 2 {
		t.Fatalf("unknown plan features = %+v, want free tier", f)
	}
}

func TestRemainingCredits(t *testing.T) {
	u := User{Plan: PlanFree, CreditsUsed: 1}
	if got := u.RemainingCredits(); got != 1 {
		t.Fatalf("RemainingCredits() = %d, want 1", got)
	}
	u.CreditsUsed = 5
	if got := u.RemainingCredits(); got != 0 {
		t.Fatalf("RemainingCredits() over-consumed = %d, want 0", got)
	}
	u.Plan = PlanProMonthly
	if got := u.RemainingCredits(); got != UnlimitedCredits {
		t.Fatalf("RemainingCredits() paid = %d, want unlimited", got)
	}
}

func TestValidateSettings(t *testing.T) {
	base := JobSettings{
		DurationSeconds: 5,
		Style:           "realistic",
		Quality:         QualityHD,
		AspectRatio:     "16:9",
		MotionType:      MotionGentle,
		MotionIntensity: 50,
		BatchPolicy:     BatchParallel,
	}
	free := PlanFree.Features()
	pro := PlanProPlusMonthly.Features()

	if err := ValidateSettings(base, free); err != nil {
		t.Fatalf("ValidateSettings(base) unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		mutate   func(*JobSettings)
		features PlanFeatures
	}{
		{"duration too short", func(s *JobSettings) { s.DurationSeconds = 1 }, free},
		{"duration too long", func(s *JobSettings) { s.DurationSeconds = 60 }, free},
		{"unknown quality", func(s *JobSettings) { s.Quality = "8k" }, pro},
		{"quality above plan", func(s *JobSettings) { s.Quality = Quality4K }, free},
		{"bad aspect ratio", func(s *JobSettings) { s.AspectRatio = "21:9" }, free},
		{"bad motion type", func(s *JobSettings) { s.MotionType = "shaky" }, free},
		{"intensity out of range", func(s *JobSettings) { s.MotionIntensity = 150 }, free},
		{"bad batch policy", func(s *JobSettings) { s.BatchPolicy = "random" }, free},
		{"custom audio on free", func(s *JobSettings) { s.CustomAudioKey = "audio/a.mp3" }, free},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			err := ValidateSettings(s, tc.features)
			if err == nil {
				t.Fatalf("ValidateSettings() expected error")
			}
		})
	}

	withAudio := base
	withAudio.CustomAudioKey = "audio/a.mp3"
	if err := ValidateSettings(withAudio, pro); err != nil {
		t.Fatalf("ValidateSettings(custom audio on pro) unexpected error: %v", err)
	}
}
