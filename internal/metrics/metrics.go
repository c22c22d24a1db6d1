package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nikhilbhutani/audioprep/internal/denoise"
)

// Metrics contains all Prometheus metrics for the transcription pipeline
type Metrics struct {
	// Pipeline outcome metrics
	Runs             *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	Retries          prometheus.Counter
	CleanupFailures  prometheus.Counter

	// Stage metrics
	Conversions    prometheus.Counter
	Recompressions *prometheus.CounterVec
	Strategies     *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec
	GatingSkipped  prometheus.Counter

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioprep_runs_total",
			Help: "Transcription runs by terminal state",
		}, []string{"state"}),
		PipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioprep_pipeline_duration_seconds",
			Help:    "Wall time of one transcription run",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12), // 250ms to ~8.5 minutes
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "audioprep_submission_retries_total",
			Help: "Submissions retried with noise removal disabled",
		}),
		CleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "audioprep_cleanup_failures_total",
			Help: "Workspaces that could not be fully removed",
		}),

		Conversions: f.NewCounter(prometheus.CounterOpts{
			Name: "audioprep_conversions_total",
			Help: "Uploads converted to audio by the transcoder",
		}),
		Recompressions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioprep_recompressions_total",
			Help: "Oversized assets handled by the size guard",
		}, []string{"result"}),
		Strategies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioprep_denoise_strategy_total",
			Help: "Noise reduction strategy that produced the submitted audio",
		}, []string{"strategy"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioprep_denoise_fallbacks_total",
			Help: "Noise reduction strategies that failed and fell through",
		}, []string{"strategy"}),
		GatingSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "audioprep_gating_skipped_total",
			Help: "Runs where spectral gating was skipped for length",
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioprep_cache_lookups_total",
			Help: "Transcript cache lookups by result",
		}, []string{"result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioprep_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audioprep_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// StrategyFailed implements denoise.Observer.
func (m *Metrics) StrategyFailed(s denoise.Strategy, _ error) {
	m.Fallbacks.WithLabelValues(s.String()).Inc()
}

// StrategyUsed implements denoise.Observer.
func (m *Metrics) StrategyUsed(s denoise.Strategy, gatingSkipped bool) {
	m.Strategies.WithLabelValues(s.String()).Inc()
	if gatingSkipped {
		m.GatingSkipped.Inc()
	}
}
