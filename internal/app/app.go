// Package app assembles the transcription pipeline and its optional stores
// from configuration. Both binaries share it.
package app

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/audioprep/internal/audit"
	"github.com/nikhilbhutani/audioprep/internal/cache"
	"github.com/nikhilbhutani/audioprep/internal/config"
	"github.com/nikhilbhutani/audioprep/internal/database"
	"github.com/nikhilbhutani/audioprep/internal/denoise"
	"github.com/nikhilbhutani/audioprep/internal/logger"
	"github.com/nikhilbhutani/audioprep/internal/media"
	"github.com/nikhilbhutani/audioprep/internal/metrics"
	"github.com/nikhilbhutani/audioprep/internal/stt"
	"github.com/nikhilbhutani/audioprep/internal/transcoder"
	"github.com/nikhilbhutani/audioprep/internal/transcription"
)

type Components struct {
	Capabilities media.Capabilities
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Orchestrator *transcription.Orchestrator
	Service      *transcription.Service

	// Optional stores; nil when not configured or unreachable.
	DB    *pgxpool.Pool
	Redis *redis.Client
	Cache *cache.Cache
	Audit *audit.Service
}

// Build probes the host once and wires every component. Database and Redis
// failures are logged and the service runs without them.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Components, error) {
	c := &Components{Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	c.Capabilities = media.DetectCapabilities(cfg.Pipeline.FFmpegPath)
	if c.Capabilities.TranscoderAvailable {
		log.WithField("ffmpeg", c.Capabilities.TranscoderPath).Info("transcoder available")
	} else {
		log.Warn("ffmpeg not found: video uploads are rejected and oversized audio is submitted as is")
	}

	backend, err := stt.New(cfg.STT)
	if err != nil {
		return nil, err
	}

	c.Orchestrator = transcription.New(transcription.Deps{
		Capabilities: c.Capabilities,
		Transcoder:   transcoder.FromCapabilities(c.Capabilities, log.Component("transcoder")),
		Backend:      backend,
		Thresholds: denoise.Thresholds{
			LargeFileFrames:     cfg.Pipeline.LargeFileFrames,
			ChunkFrames:         cfg.Pipeline.ChunkFrames,
			GatingMaxSamples:    cfg.Pipeline.GatingMaxSamples,
			MaxWholeBufferBytes: cfg.Pipeline.MaxWholeBufferBytes,
		},
		Ceiling:     cfg.Pipeline.SizeCeilingBytes,
		BitrateKbps: cfg.Pipeline.RecompressKbps,
		TempRoot:    cfg.Pipeline.TempRoot,
		Language:    cfg.STT.Language,
		Metrics:     c.Metrics,
		Log:         log.Component("pipeline"),
	})

	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database, log.Component("database"))
		if err != nil {
			log.WithError(err).Warn("database unavailable, running without run audit")
		} else {
			c.DB = db
			if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath, log.Component("database")); err != nil {
				log.WithError(err).Warn("migrations failed")
			}
			c.Audit = audit.NewService(db)
		}
	}

	if cfg.Redis.Addr != "" {
		rdb := cache.NewClient(cfg.Redis)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unavailable, running without transcript cache")
			rdb.Close()
		} else {
			c.Redis = rdb
			c.Cache = cache.NewCache(rdb, "audioprep:")
		}
	}

	opts := []transcription.ServiceOption{transcription.WithMetrics(c.Metrics)}
	if c.Cache != nil && cfg.Cache.TTL > 0 {
		opts = append(opts, transcription.WithCache(c.Cache, cfg.Cache.TTL))
	}
	if c.Audit != nil {
		opts = append(opts, transcription.WithRecorder(c.Audit))
	}
	c.Service = transcription.NewService(c.Orchestrator, log.Component("service"), opts...)
	return c, nil
}

func (c *Components) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		c.DB.Close()
	}
	return errors.Join(errs...)
}
