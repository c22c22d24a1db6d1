package transcription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nikhilbhutani/audioprep/internal/audit"
	"github.com/nikhilbhutani/audioprep/internal/metrics"
)

// Transcriber is satisfied by *Orchestrator.
type Transcriber interface {
	Transcribe(ctx context.Context, up Upload, opts Options) (*Outcome, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type RunRecorder interface {
	RecordRun(ctx context.Context, run audit.Run) error
}

// Service adds the transcript cache and run audit around a Transcriber.
// Cache and recorder are optional.
type Service struct {
	pipeline Transcriber
	cache    Cache
	ttl      time.Duration
	recorder RunRecorder
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

type ServiceOption func(*Service)

func WithCache(c Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithRecorder(r RunRecorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(pipeline Transcriber, log *logrus.Entry, opts ...ServiceOption) *Service {
	s := &Service{pipeline: pipeline, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcribe serves identical uploads from the cache when up.Data can be
// rewound after hashing. Only the transcript text and flags are cached.
func (s *Service) Transcribe(ctx context.Context, up Upload, opts Options) (*Outcome, error) {
	key := ""
	if s.cache != nil {
		if rs, ok := up.Data.(io.ReadSeeker); ok {
			k, err := cacheKey(rs, opts)
			if err != nil {
				return nil, err
			}
			key = k
		}
	}

	if key != "" {
		var cached Outcome
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.countLookup("hit")
			s.log.WithFields(logrus.Fields{"filename": up.Filename, "cache_key": key}).Info("transcript served from cache")
			return &cached, nil
		}
		s.countLookup("miss")
	}

	outcome, err := s.pipeline.Transcribe(ctx, up, opts)
	if outcome != nil {
		s.record(ctx, opts, outcome, err)
	}
	if err != nil {
		return outcome, err
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, outcome, s.ttl); err != nil {
			s.log.WithError(err).Warn("cache transcript")
		}
	}
	return outcome, nil
}

func (s *Service) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (s *Service) record(ctx context.Context, opts Options, out *Outcome, runErr error) {
	if s.recorder == nil {
		return
	}
	rep := out.Report
	run := audit.Run{
		RunID:                 rep.RunID,
		Filename:              rep.Filename,
		UploadBytes:           rep.UploadBytes,
		Classification:        rep.Classification.String(),
		RemoveNoiseRequested:  opts.RemoveNoise,
		ForceEnglishRequested: opts.ForceEnglish,
		NoiseRemoved:          out.Optimizations.NoiseRemoval,
		ForcedEnglish:         out.Optimizations.ForcedEnglish,
		Strategy:              rep.Strategy.String(),
		Converted:             rep.Converted,
		Recompressed:          rep.Recompressed,
		Retried:               rep.Retried,
		State:                 string(rep.Final()),
		DurationMs:            rep.Duration.Milliseconds(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		s.log.WithError(err).WithField("run_id", rep.RunID).Warn("record transcription run")
	}
}

func cacheKey(rs io.ReadSeeker, opts Options) (string, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("hash upload: %w", err)
	}
	h := sha256.New()
	if _, err := io.Copy(h, rs); err != nil {
		return "", fmt.Errorf("hash upload: %w", err)
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return fmt.Sprintf("transcript:%s:noise=%t:en=%t", hex.EncodeToString(h.Sum(nil)), opts.RemoveNoise, opts.ForceEnglish), nil
}
