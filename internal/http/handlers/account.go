package handlers

import (
	"net/http"

	"pixvid/internal/domain"
)

type planFeaturesDTO struct {
	MaxCredits        int    `json:"max_credits"`
	MaxConcurrentJobs int    `json:"max_concurrent_jobs"`
	MaxQuality        string `json:"max_quality"`
	HasWatermark      bool   `json:"has_watermark"`
	CanUploadAudio    bool   `json:"can_upload_audio"`
	CanUseReferences  bool   `json:"can_use_references"`
	HasAPIAccess      bool   `json:"has_api_access"`
}

type accountDTO struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	Name             string                 `json:"name,omitempty"`
	Plan             string                 `json:"plan"`
	CreditsUsed      int                    `json:"credits_used"`
	RemainingCredits int                    `json:"remaining_credits"`
	TotalVideos      int                    `json:"total_videos"`
	Features         planFeaturesDTO        `json:"features"`
	Preferences      domain.UserPreferences `json:"preferences"`
}

// Me returns the caller's account snapshot with plan entitlements.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	f := user.Plan.Features()
	a.json(w, http.StatusOK, accountDTO{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.Name,
		Plan:             string(user.Plan),
		CreditsUsed:      user.CreditsUsed,
		RemainingCredits: user.RemainingCredits(),
		TotalVideos:      user.TotalVideos,
		Features: planFeaturesDTO{
			MaxCredits:        f.MaxCredits,
			MaxConcurrentJobs: f.MaxConcurrentJobs,
			MaxQuality:        string(f.MaxQuality),
			HasWatermark:      f.HasWatermark,
			CanUploadAudio:    f.CanUploadAudio,
			CanUseReferences:  f.CanUseReferences,
			HasAPIAccess:      f.HasAPIAccess,
		},
		Preferences: user.Preferences,
	})
}
