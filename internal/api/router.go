package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhutani/audioprep/internal/api/handlers"
	"github.com/nikhilbhutani/audioprep/internal/api/middleware"
	"github.com/nikhilbhutani/audioprep/internal/auth"
	"github.com/nikhilbhutani/audioprep/internal/config"
	"github.com/nikhilbhutani/audioprep/internal/logger"
	"github.com/nikhilbhutani/audioprep/internal/media"
	"github.com/nikhilbhutani/audioprep/internal/metrics"
	"github.com/nikhilbhutani/audioprep/internal/transcription"
)

// Deps are the collaborators the HTTP layer needs. Jobs, Runs and
// RateCounter are optional and must be left nil (not typed-nil) when the
// backing store is disabled.
type Deps struct {
	Config       *config.Config
	Log          *logger.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Transcriber  transcription.Transcriber
	Capabilities media.Capabilities
	Jobs         handlers.JobQueue
	Runs         handlers.RunLister
	RateCounter  middleware.Counter
	Ready        map[string]handlers.Pinger
}

type Router struct {
	mux  *chi.Mux
	deps Deps
	auth *auth.Authenticator
}

func NewRouter(d Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		deps: d,
		auth: auth.NewAuthenticator(d.Config.Auth, d.Log.Component("auth")),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.deps.Log, rt.deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	if cfg.Server.RateLimitRPS > 0 {
		rl := middleware.NewRateLimiter(float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst, rt.deps.RateCounter, rt.deps.Log.Component("ratelimit"))
		r.Use(rl.Limit)
	}

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Capabilities, rt.deps.Ready)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(rt.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	transcribeH := handlers.NewTranscriptionHandler(
		rt.deps.Transcriber,
		media.NewProbe(rt.deps.Capabilities),
		rt.deps.Jobs,
		cfg.Server.MaxUploadBytes,
		rt.deps.Log.Component("api"),
	)
	adminH := handlers.NewAdminHandler(rt.deps.Runs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.auth.Authenticate)

		r.Route("/audio", func(r chi.Router) {
			r.Post("/transcriptions", transcribeH.Transcribe)
			r.Post("/transcriptions/async", transcribeH.TranscribeAsync)
			r.Get("/jobs/{id}", transcribeH.Job)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleService))
			r.Get("/runs", adminH.Runs)
		})
	})

	return r
}
