package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further automatic transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Quality enumerates output rendition tiers.
type Quality string

const (
	QualityHD  Quality = "hd"
	QualityFHD Quality = "fhd"
	Quality4K  Quality = "4k"
)

// Rank orders qualities from lowest to highest.
func (q Quality) Rank() int {
	switch q {
	case Quality4K:
		return 3
	case QualityFHD:
		return 2
	default:
		return 1
	}
}

// MotionType enumerates supported camera/subject motion presets.
type MotionType string

const (
	MotionGentle    MotionType = "gentle"
	MotionSmooth    MotionType = "smooth"
	MotionDynamic   MotionType = "dynamic"
	MotionCinematic MotionType = "cinematic"
)

// BatchPolicy enumerates pending-queue ordering strategies.
type BatchPolicy string

const (
	BatchSequential BatchPolicy = "sequential"
	BatchPriority   BatchPolicy = "priority"
	BatchParallel   BatchPolicy = "parallel"
)

// AspectRatios lists the accepted output aspect ratios.
var AspectRatios = []string{"16:9", "9:16", "1:1"}

const (
	MinDurationSeconds = 3
	MaxDurationSeconds = 15

	// MaxRetries bounds automatic requeues after a stage failure.
	MaxRetries = 3
)

// JobSettings captures the rendering options chosen at submission time.
type JobSettings struct {
	DurationSeconds int         `json:"duration_seconds"`
	Style           string      `json:"style"`
	Quality         Quality     `json:"quality"`
	AspectRatio     string      `json:"aspect_ratio"`
	MotionType      MotionType  `json:"motion_type"`
	MotionIntensity int         `json:"motion_intensity"`
	Prompt          string      `json:"prompt,omitempty"`
	AudioTrack      string      `json:"audio_track,omitempty"`
	CustomAudioKey  string      `json:"custom_audio_key,omitempty"`
	BatchPolicy     BatchPolicy `json:"batch_policy"`
	// Watermark is materialized from the owner's plan at submission time.
	Watermark bool `json:"watermark,omitempty"`
}

// Job is one queued request to turn a source image into a video.
type Job struct {
	ID             string
	UserID         string
	SourceAssetKey string
	ReferenceKeys  []string
	Settings       JobSettings
	Status         JobStatus
	Progress       int
	CurrentStage   string
	RetryCount     int
	ErrorMessage   string
	ResultKey      string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// HasReferences reports whether additional conditioning images were attached.
func (j *Job) HasReferences() bool {
	return len(j.ReferenceKeys) > 0
}

// Clone returns a deep copy suitable for handing out as a snapshot.
func (j *Job) Clone() *Job {
	cp := *j
	cp.ReferenceKeys = append([]string(nil), j.ReferenceKeys...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ValidateSettings rejects malformed settings before a job ever enters the queue.
func ValidateSettings(s JobSettings, features PlanFeatures) error {
	if s.DurationSeconds < MinDurationSeconds || s.DurationSeconds > MaxDurationSeconds {
		return fmt.Errorf("%w: duration %ds outside [%d,%d]", ErrInvalidJobRequest, s.DurationSeconds, MinDurationSeconds, MaxDurationSeconds)
	}
	switch s.Quality {
	case QualityHD, QualityFHD, Quality4K:
	default:
		return fmt.Errorf("%w: unknown quality %q", ErrInvalidJobRequest, s.Quality)
	}
	if s.Quality.Rank() > features.MaxQuality.Rank() {
		return fmt.Errorf("%w: quality %q exceeds plan maximum %q", ErrInvalidJobRequest, s.Quality, features.MaxQuality)
	}
	if !validAspectRatio(s.AspectRatio) {
		return fmt.Errorf("%w: unknown aspect ratio %q", ErrInvalidJobRequest, s.AspectRatio)
	}
	switch s.MotionType {
	case MotionGentle, MotionSmooth, MotionDynamic, MotionCinematic:
	default:
		return fmt.Errorf("%w: unknown motion type %q", ErrInvalidJobRequest, s.MotionType)
	}
	if s.MotionIntensity < 0 || s.MotionIntensity > 100 {
		return fmt.Errorf("%w: motion intensity %d outside [0,100]", ErrInvalidJobRequest, s.MotionIntensity)
	}
	switch s.BatchPolicy {
	case BatchSequential, BatchPriority, BatchParallel:
	default:
		return fmt.Errorf("%w: unknown batch policy %q", ErrInvalidJobRequest, s.BatchPolicy)
	}
	if strings.TrimSpace(s.CustomAudioKey) != "" && !features.CanUploadAudio {
		return fmt.Errorf("%w: custom audio requires a paid plan", ErrInvalidJobRequest)
	}
	return nil
}

func validAspectRatio(ar string) bool {
	for _, v := range AspectRatios {
		if v == ar {
			return true
		}
	}
	return false
}
