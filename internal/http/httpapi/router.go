package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"pixvid/internal/http/handlers"
	"pixvid/internal/middleware"
)

// Options carries the router's cross-cutting configuration.
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
	AllowedOrigins  []string
	CountryLookup   middleware.CountryLookup
}

// NewRouter assembles the HTTP surface: public health and pricing plus the
// JWT-protected job and account routes.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.Region(opts.CountryLookup),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/pricing", app.Pricing)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Get("/v1/me", app.Me)

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobsSubmit)
			r.Get("/", app.JobsList)
			r.Get("/events", app.JobEvents)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", app.JobStatus)
				r.Delete("/", app.JobCancel)
				r.Post("/retry", app.JobRetry)
				r.Get("/result", app.JobResult)
			})
		})
	})

	return r
}
