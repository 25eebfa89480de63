// Package render provides the concrete stage implementations plugged into the
// scheduler's stage runner. The pipeline produces synthetic MP4 artifacts; a
// production deployment swaps individual stages for real media-processing
// calls without touching the scheduler.
package render

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pixvid/internal/domain"
	"pixvid/internal/scheduler"
	"pixvid/internal/storage"
)

// stage weights mirror the expected relative durations of the pipeline steps.
const (
	weightAnalyze       = 15
	weightReferences    = 20
	weightReferencesLow = 5
	weightPrompt        = 15
	weightPromptLow     = 5
	weightMotion        = 25
	weightMotionControl = 15
	weightRender        = 20
	weightOptimize      = 10
)

// Pipeline builds the per-job stage plan.
type Pipeline struct {
	store  *storage.FileStore
	logger zerolog.Logger
	// paceUnit is how long one weight unit of simulated work takes. Tests
	// shrink it to keep runs fast.
	paceUnit time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPaceUnit overrides the simulated per-weight work duration.
func WithPaceUnit(d time.Duration) Option {
	return func(p *Pipeline) { p.paceUnit = d }
}

// NewPipeline constructs the rendering pipeline. store may be nil, in which
// case artifacts are not written to disk and only a result key is produced.
func NewPipeline(store *storage.FileStore, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, logger: logger, paceUnit: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// renderState carries intermediate results between stages of one job.
type renderState struct {
	seed           [32]byte
	enhancedPrompt string
	motionFrames   int
}

// Stages returns the ordered stage plan for the job. Reference conditioning
// and prompt enhancement are cheap when the job carries neither.
func (p *Pipeline) Stages(job *domain.Job) []scheduler.WeightedStage {
	state := &renderState{}

	refWeight := weightReferencesLow
	if job.HasReferences() {
		refWeight = weightReferences
	}
	promptWeight := weightPromptLow
	if strings.TrimSpace(job.Settings.Prompt) != "" {
		promptWeight = weightPrompt
	}

	return []scheduler.WeightedStage{
		{Stage: p.stage("Analyzing image composition", weightAnalyze, state, p.analyzeComposition), Weight: weightAnalyze},
		{Stage: p.stage("Processing reference images", refWeight, state, p.processReferences), Weight: refWeight},
		{Stage: p.stage("Applying AI prompt enhancement", promptWeight, state, p.enhancePrompt), Weight: promptWeight},
		{Stage: p.stage("Generating motion effects", weightMotion, state, p.generateMotion), Weight: weightMotion},
		{Stage: p.stage("Applying advanced motion control", weightMotionControl, state, p.applyMotionControl), Weight: weightMotionControl},
		{Stage: p.stage("Rendering with music integration", weightRender, state, p.renderVideo), Weight: weightRender},
		{Stage: p.stage("Final quality optimization", weightOptimize, state, p.optimize), Weight: weightOptimize},
	}
}

type stageFunc func(ctx context.Context, job *domain.Job, state *renderState) error

type pipelineStage struct {
	name   string
	weight int
	state  *renderState
	fn     stageFunc
	pace   time.Duration
}

func (p *Pipeline) stage(name string, weight int, state *renderState, fn stageFunc) scheduler.Stage {
	return &pipelineStage{name: name, weight: weight, state: state, fn: fn, pace: p.paceUnit}
}

func (s *pipelineStage) Name() string { return s.name }

func (s *pipelineStage) Run(ctx context.Context, job *domain.Job, report scheduler.ProgressFn) error {
	// Pace the stage across a handful of steps so progress advances smoothly
	// toward the stage boundary instead of jumping.
	const steps = 5
	stepDur := time.Duration(s.weight) * s.pace / steps
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stepDur):
		}
		report(float64(i) / steps)
	}
	return s.fn(ctx, job, s.state)
}

func (p *Pipeline) analyzeComposition(_ context.Context, job *domain.Job, state *renderState) error {
	if strings.TrimSpace(job.SourceAssetKey) == "" {
		return fmt.Errorf("source asset missing")
	}
	state.seed = sha256.Sum256([]byte(job.SourceAssetKey + job.ID))
	return nil
}

func (p *Pipeline) processReferences(_ context.Context, job *domain.Job, state *renderState) error {
	for _, key := range job.ReferenceKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("empty reference asset key")
		}
		mixed := sha256.Sum256(append(state.seed[:], key...))
		state.seed = mixed
	}
	return nil
}

// enhancePrompt normalizes the free-text prompt into the form the generator
// expects. Empty prompts fall back to a style-derived description.
func (p *Pipeline) enhancePrompt(_ context.Context, job *domain.Job, state *renderState) error {
	prompt := strings.TrimSpace(job.Settings.Prompt)
	titler := cases.Title(language.Und)
	if prompt == "" {
		state.enhancedPrompt = fmt.Sprintf("%s motion study in %s style",
			titler.String(string(job.Settings.MotionType)), job.Settings.Style)
		return nil
	}
	state.enhancedPrompt = fmt.Sprintf("%s. Professional %s motion, %s aspect ratio, cinematic lighting.",
		prompt, job.Settings.MotionType, job.Settings.AspectRatio)
	return nil
}

func (p *Pipeline) generateMotion(_ context.Context, job *domain.Job, state *renderState) error {
	const fps = 24
	state.motionFrames = job.Settings.DurationSeconds * fps
	if state.motionFrames <= 0 {
		return fmt.Errorf("invalid duration %d", job.Settings.DurationSeconds)
	}
	return nil
}

func (p *Pipeline) applyMotionControl(_ context.Context, job *domain.Job, state *renderState) error {
	if job.Settings.MotionIntensity < 0 || job.Settings.MotionIntensity > 100 {
		return fmt.Errorf("motion intensity %d out of range", job.Settings.MotionIntensity)
	}
	return nil
}

func (p *Pipeline) renderVideo(ctx context.Context, job *domain.Job, state *renderState) error {
	key := fmt.Sprintf("generated/videos/%s/video.mp4", job.ID)
	if p.store != nil {
		data := syntheticMP4(state, job)
		saved, err := p.store.Write(ctx, key, data)
		if err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		key = saved
	}
	job.ResultKey = key
	return nil
}

func (p *Pipeline) optimize(_ context.Context, job *domain.Job, _ *renderState) error {
	if job.Settings.Watermark {
		p.logger.Debug().Str("job_id", job.ID).Msg("render: applying free-tier watermark")
	}
	return nil
}

// syntheticMP4 produces a deterministic placeholder artifact: a valid-looking
// ftyp header followed by seed-derived payload sized by duration and quality.
func syntheticMP4(state *renderState, job *domain.Job) []byte {
	header := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
		0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '1'}

	perSecond := 16 * 1024 * job.Settings.Quality.Rank()
	size := job.Settings.DurationSeconds * perSecond
	payload := make([]byte, 0, len(header)+size)
	payload = append(payload, header...)

	block := state.seed
	counter := uint64(0)
	for len(payload) < len(header)+size {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, counter)
		block = sha256.Sum256(append(block[:], buf...))
		payload = append(payload, block[:]...)
		counter++
	}
	return payload[:len(header)+size]
}
