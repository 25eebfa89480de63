package domain

// Plan enumerates billing plans.
type Plan string

const (
	PlanFree           Plan = "free"
	PlanProMonthly     Plan = "pro_monthly"
	PlanProAnnual      Plan = "pro_annual"
	PlanProPlusMonthly Plan = "pro_plus_monthly"
	PlanProPlusAnnual  Plan = "pro_plus_annual"
)

// UnlimitedCredits marks plans without a weekly credit allowance.
const UnlimitedCredits = -1

// PlanFeatures describes the entitlements attached to a plan.
type PlanFeatures struct {
	MaxCredits        int
	MaxConcurrentJobs int
	MaxQuality        Quality
	HasWatermark      bool
	CanUploadAudio    bool
	CanUseReferences  bool
	HasAPIAccess      bool
}

var planFeatures = map[Plan]PlanFeatures{
	PlanFree: {
		MaxCredits:        2,
		MaxConcurrentJobs: 1,
		MaxQuality:        QualityHD,
		HasWatermark:      true,
	},
	PlanProMonthly: {
		MaxCredits:        UnlimitedCredits,
		MaxConcurrentJobs: 3,
		MaxQuality:        QualityFHD,
		CanUploadAudio:    true,
		CanUseReferences:  true,
	},
	PlanProAnnual: {
		MaxCredits:        UnlimitedCredits,
		MaxConcurrentJobs: 3,
		MaxQuality:        QualityFHD,
		CanUploadAudio:    true,
		CanUseReferences:  true,
	},
	PlanProPlusMonthly: {
		MaxCredits:        UnlimitedCredits,
		MaxConcurrentJobs: 5,
		MaxQuality:        Quality4K,
		CanUploadAudio:    true,
		CanUseReferences:  true,
		HasAPIAccess:      true,
	},
	PlanProPlusAnnual: {
		MaxCredits:        UnlimitedCredits,
		MaxConcurrentJobs: 5,
		MaxQuality:        Quality4K,
		CanUploadAudio:    true,
		CanUseReferences:  true,
		HasAPIAccess:      true,
	},
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := planFeatures[p]
	return ok
}

// Features returns the entitlements for the plan, falling back to free for
// unknown values so a bad row never grants paid capacity.
func (p Plan) Features() PlanFeatures {
	if f, ok := planFeatures[p]; ok {
		return f
	}
	return planFeatures[PlanFree]
}

// Unlimited reports whether the plan has no credit allowance.
func (p Plan) Unlimited() bool {
	return p.Features().MaxCredits == UnlimitedCredits
}
