package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"pixvid/internal/domain"
	"pixvid/internal/middleware"
	"pixvid/internal/scheduler"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers(users ...*domain.User) *memUsers {
	m := &memUsers{users: make(map[string]*domain.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) ConsumeCredit(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	if u.IsFree() {
		u.CreditsUsed++
	}
	u.TotalVideos++
	return nil
}

func (m *memUsers) ResetWeeklyCredits(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.CreditsUsed = 0
	return nil
}

func (m *memUsers) SetPlan(_ context.Context, id string, plan domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Plan = plan
	return nil
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*domain.Job)}
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *memJobs) UpdateSnapshot(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *memJobs) ListByUser(_ context.Context, userID string, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Job
	for _, job := range m.jobs {
		if job.UserID == userID {
			out = append(out, job.Clone())
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memJobs) ListUnfinished(_ context.Context) ([]*domain.Job, error) {
	return nil, nil
}

// blockingStages holds every job until released so tests can observe
// intermediate states.
type blockingStages struct {
	release chan struct{}
}

func (p *blockingStages) Stages(_ *domain.Job) []scheduler.WeightedStage {
	return []scheduler.WeightedStage{{
		Stage: stageFunc{name: "render", fn: func(ctx context.Context) error {
			select {
			case <-p.release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		Weight: 100,
	}}
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Run(ctx context.Context, _ *domain.Job, _ scheduler.ProgressFn) error {
	return s.fn(ctx)
}

const testSecret = "handler-test-secret"

type testEnv struct {
	server  *httptest.Server
	users   *memUsers
	jobs    *memJobs
	engine  *scheduler.Engine
	release chan struct{}
}

func newTestEnv(t *testing.T, users ...*domain.User) *testEnv {
	t.Helper()
	mu := newMemUsers(users...)
	mj := newMemJobs()
	release := make(chan struct{})
	eng := scheduler.New(scheduler.Config{}, &blockingStages{release: release}, mu, mj, nil, zerolog.Nop())
	t.Cleanup(func() { _ = eng.Close(5 * time.Second) })

	app := &App{
		Engine:    eng,
		Users:     mu,
		Jobs:      mj,
		Logger:    zerolog.Nop(),
		JWTSecret: testSecret,
	}
	// Mirrors the production route layout without importing the router package.
	r := chi.NewRouter()
	r.Use(middleware.Region(nil))
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/pricing", app.Pricing)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(testSecret))
		r.Get("/v1/me", app.Me)
		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobsSubmit)
			r.Get("/", app.JobsList)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", app.JobStatus)
				r.Delete("/", app.JobCancel)
				r.Post("/retry", app.JobRetry)
			})
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, users: mu, jobs: mj, engine: eng, release: release}
}

func (env *testEnv) token(t *testing.T, userID string, plan domain.Plan) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{
		Sub:  userID,
		Plan: plan,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, env.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func validSubmitBody(items int) submitJobsRequest {
	req := submitJobsRequest{
		Settings: domain.JobSettings{
			DurationSeconds: 5,
			Quality:         domain.QualityHD,
			AspectRatio:     "16:9",
			MotionType:      domain.MotionSmooth,
			MotionIntensity: 50,
			BatchPolicy:     domain.BatchParallel,
		},
	}
	for i := 0; i < items; i++ {
		req.Items = append(req.Items, submitJobItem{SourceAssetKey: "uploads/source.jpg"})
	}
	return req
}

func TestJobsSubmitAccepted(t *testing.T) {
	env := newTestEnv(t, &domain.User{ID: "u1", Email: "u1@example.com", Plan: domain.PlanFree})
	token := env.token(t, "u1", domain.PlanFree)

	resp := env.do(t, http.MethodPost, "/v1/jobs", token, validSubmitBody(2))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	body := decodeBody[submitJobsResponse](t, resp)
	if len(body.JobIDs) != 2 {
		t.Fatalf("job_ids = %v, want 2 entries", body.JobIDs)
	}
	if body.RemainingCredits != 0 {
		t.Fatalf("remaining_credits = %d, want 0", body.RemainingCredits)
	}
}

func TestJobsSubmitInsufficientCredits(t *testing.T) {
	env := newTestEnv(t, &domain.User{ID: "u1", Plan: domain.PlanFree})
	token := env.token(t, "u1", domain.PlanFree)

	resp := env.do(t, http.MethodPost, "/v1/jobs", token, validSubmitBody(3))
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", resp.StatusCode)
	}
	body := decodeBody[errorResponse](t, resp)
	if body.Error != "insufficient_credits" {
		t.Fatalf("error = %q, want insufficient_credits", body.Error)
	}
}

func TestJobsSubmitInvalidSettings(t *testing.T) {
	env := newTestEnv(t, &domain.User{ID: "u1", Plan: domain.PlanFree})
	token := env.token(t, "u1", domain.PlanFree)

	body := validSubmitBody(1)
	body.Settings.Quality = domain.Quality4K // above the free plan ceiling
	resp := env.do(t, http.MethodPost, "/v1/jobs", token, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestJobsSubmitReferencesNeedPaidPlan(t *testing.T) {
	// The free tier cannot attach reference images; the plan claim rejects
	// the request before any account lookup.
	env := newTestEnv(t, &domain.User{ID: "u1", Plan: domain.PlanFree})
	token := env.token(t, "u1", domain.PlanFree)

	body := validSubmitBody(1)
	body.Items[0].ReferenceKeys = []string{"uploads/ref.jpg"}
	resp := env.do(t, http.MethodPost, "/v1/jobs", token, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestJobsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/v1/jobs", "", validSubmitBody(1))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestJobStatusHidesOtherUsers(t *testing.T) {
	env := newTestEnv(t,
		&domain.User{ID: "u1", Plan: domain.PlanFree},
		&domain.User{ID: "u2", Plan: domain.PlanFree},
	)
	ownerToken := env.token(t, "u1", domain.PlanFree)
	otherToken := env.token(t, "u2", domain.PlanFree)

	resp := env.do(t, http.MethodPost, "/v1/jobs", ownerToken, validSubmitBody(1))
	submitted := decodeBody[submitJobsResponse](t, resp)

	resp = env.do(t, http.MethodGet, "/v1/jobs/"+submitted.JobIDs[0], otherToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/v1/jobs/"+submitted.JobIDs[0], ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	job := decodeBody[jobDTO](t, resp)
	if job.ID != submitted.JobIDs[0] {
		t.Fatalf("job id = %q, want %q", job.ID, submitted.JobIDs[0])
	}
}

func TestJobCancelQueued(t *testing.T) {
	// Pro plan with concurrency 3: submit 4 so the last one stays queued.
	env := newTestEnv(t, &domain.User{ID: "u1", Plan: domain.PlanProMonthly})
	token := env.token(t, "u1", domain.PlanProMonthly)

	resp := env.do(t, http.MethodPost, "/v1/jobs", token, validSubmitBody(4))
	submitted := decodeBody[submitJobsResponse](t, resp)
	queuedID := submitted.JobIDs[3]

	resp = env.do(t, http.MethodDelete, "/v1/jobs/"+queuedID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/v1/jobs/"+queuedID, token, nil)
	job := decodeBody[jobDTO](t, resp)
	if job.Status != string(domain.JobStatusCancelled) {
		t.Fatalf("status = %q, want cancelled", job.Status)
	}

	// Cancelling again conflicts.
	resp = env.do(t, http.MethodDelete, "/v1/jobs/"+queuedID, token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestJobsListStates(t *testing.T) {
	env := newTestEnv(t, &domain.User{ID: "u1", Plan: domain.PlanProMonthly})
	token := env.token(t, "u1", domain.PlanProMonthly)

	resp := env.do(t, http.MethodPost, "/v1/jobs", token, validSubmitBody(4))
	decodeBody[submitJobsResponse](t, resp)

	resp = env.do(t, http.MethodGet, "/v1/jobs?state=inflight", token, nil)
	inflight := decodeBody[struct {
		Items []jobDTO `json:"items"`
	}](t, resp)
	if len(inflight.Items) != 3 {
		t.Fatalf("inflight = %d, want 3", len(inflight.Items))
	}

	resp = env.do(t, http.MethodGet, "/v1/jobs?state=pending", token, nil)
	pending := decodeBody[struct {
		Items []jobDTO `json:"items"`
	}](t, resp)
	if len(pending.Items) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending.Items))
	}

	resp = env.do(t, http.MethodGet, "/v1/jobs?state=bogus", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMeReturnsAccountSnapshot(t *testing.T) {
	env := newTestEnv(t, &domain.User{
		ID:          "u1",
		Email:       "u1@example.com",
		Plan:        domain.PlanProPlusMonthly,
		TotalVideos: 7,
	})
	token := env.token(t, "u1", domain.PlanProPlusMonthly)

	resp := env.do(t, http.MethodGet, "/v1/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	me := decodeBody[accountDTO](t, resp)
	if me.Plan != string(domain.PlanProPlusMonthly) {
		t.Fatalf("plan = %q", me.Plan)
	}
	if me.RemainingCredits != domain.UnlimitedCredits {
		t.Fatalf("remaining_credits = %d, want unlimited", me.RemainingCredits)
	}
	if me.Features.MaxConcurrentJobs != 5 || me.Features.MaxQuality != string(domain.Quality4K) {
		t.Fatalf("unexpected features: %+v", me.Features)
	}
}

func TestPricingRegions(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		country  string
		currency string
		proPrice int
	}{
		{name: "india", country: "IN", currency: "INR", proPrice: 47900},
		{name: "us", country: "US", currency: "USD", proPrice: 600},
		{name: "unknown defaults to INR", country: "", currency: "INR", proPrice: 47900},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/v1/pricing", nil)
			if tc.country != "" {
				req.Header.Set("X-Country-Code", tc.country)
			}
			resp, err := env.server.Client().Do(req)
			if err != nil {
				t.Fatalf("pricing request: %v", err)
			}
			body := decodeBody[pricingResponse](t, resp)
			if body.Currency != tc.currency {
				t.Fatalf("currency = %q, want %q", body.Currency, tc.currency)
			}
			for _, item := range body.Plans {
				if item.Plan == string(domain.PlanProMonthly) && item.Amount != tc.proPrice {
					t.Fatalf("pro_monthly amount = %d, want %d", item.Amount, tc.proPrice)
				}
			}
		})
	}
}

func TestHealthReportsQueueDepth(t *testing.T) {
	env := newTestEnv(t, &domain.User{ID: "u1", Plan: domain.PlanProMonthly})
	token := env.token(t, "u1", domain.PlanProMonthly)

	resp := env.do(t, http.MethodPost, "/v1/jobs", token, validSubmitBody(4))
	decodeBody[submitJobsResponse](t, resp)

	resp, err := env.server.Client().Get(env.server.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	health := decodeBody[healthDTO](t, resp)
	if health.Status != "ok" {
		t.Fatalf("status = %q, want ok", health.Status)
	}
	if health.JobsInFlight != 3 || health.JobsPending != 1 {
		t.Fatalf("queue depth = %d in flight, %d pending, want 3 and 1", health.JobsInFlight, health.JobsPending)
	}
}
