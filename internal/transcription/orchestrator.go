package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nikhilbhutani/audioprep/internal/denoise"
	"github.com/nikhilbhutani/audioprep/internal/media"
	"github.com/nikhilbhutani/audioprep/internal/metrics"
	"github.com/nikhilbhutani/audioprep/internal/stt"
)

// Upload is the raw file handed over by the transport layer.
type Upload struct {
	Filename string
	Data     io.Reader
}

type Deps struct {
	Capabilities media.Capabilities
	Transcoder   media.Transcoder
	Backend      stt.Provider
	Thresholds   denoise.Thresholds
	Ceiling      int64
	BitrateKbps  int
	TempRoot     string
	Language     string
	Metrics      *metrics.Metrics
	Log          *logrus.Entry
}

// Orchestrator drives one upload through normalise, denoise, size check and
// submission. It is safe for concurrent use; per-run state lives in the
// request workspace.
type Orchestrator struct {
	probe      *media.Probe
	normalizer *media.Normalizer
	engine     *denoise.Engine
	guard      *media.SizeGuard
	backend    stt.Provider
	metrics    *metrics.Metrics
	tempRoot   string
	language   string
	log        *logrus.Entry
}

func New(d Deps) *Orchestrator {
	if d.Language == "" {
		d.Language = "en"
	}
	if d.Thresholds == (denoise.Thresholds{}) {
		d.Thresholds = denoise.DefaultThresholds()
	}
	opts := []denoise.Option{denoise.WithThresholds(d.Thresholds)}
	if d.Metrics != nil {
		opts = append(opts, denoise.WithObserver(d.Metrics))
	}
	return &Orchestrator{
		probe:      media.NewProbe(d.Capabilities),
		normalizer: media.NewNormalizer(d.Capabilities, d.Transcoder, d.Log),
		engine:     denoise.NewEngine(d.Capabilities, d.Transcoder, d.Log, opts...),
		guard:      media.NewSizeGuard(d.Capabilities, d.Transcoder, d.Ceiling, d.BitrateKbps, d.Log),
		backend:    d.Backend,
		metrics:    d.Metrics,
		tempRoot:   d.TempRoot,
		language:   d.Language,
		log:        d.Log,
	}
}

type run struct {
	report Report
	log    *logrus.Entry
}

func (r *run) transition(s State) {
	r.report.States = append(r.report.States, s)
	r.log.WithField("state", string(s)).Debug("pipeline transition")
}

// Transcribe runs the full pipeline. The returned Outcome carries a Report
// even when err is non-nil.
func (o *Orchestrator) Transcribe(ctx context.Context, up Upload, opts Options) (*Outcome, error) {
	started := time.Now()
	r := &run{report: Report{RunID: uuid.NewString(), Filename: up.Filename}}
	r.log = o.log.WithFields(logrus.Fields{"run_id": r.report.RunID, "filename": up.Filename})
	r.transition(StateStart)

	outcome, err := o.execute(ctx, r, up, opts)

	r.report.Duration = time.Since(started)
	r.report.Err = err
	if err != nil {
		r.transition(StateFailed)
		r.log.WithError(err).Warn("transcription failed")
	} else {
		r.log.WithFields(logrus.Fields{
			"strategy":     r.report.Strategy.String(),
			"retried":      r.report.Retried,
			"recompressed": r.report.Recompressed,
			"duration":     r.report.Duration.String(),
		}).Info("transcription finished")
	}
	o.observe(r.report)

	if outcome == nil {
		outcome = &Outcome{}
	}
	outcome.Report = r.report
	return outcome, err
}

func (o *Orchestrator) execute(ctx context.Context, r *run, up Upload, opts Options) (*Outcome, error) {
	class, err := o.probe.Check(up.Filename)
	r.report.Classification = class
	if err != nil {
		return nil, err
	}

	ws, err := media.NewWorkspace(o.tempRoot, r.log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Sweep(); err != nil {
			r.log.WithError(err).Warn("workspace cleanup incomplete")
			if o.metrics != nil {
				o.metrics.CleanupFailures.Inc()
			}
		}
	}()

	upload, err := writeUpload(ws, up)
	if err != nil {
		return nil, err
	}
	r.report.UploadBytes = upload.ByteSize

	out, err := o.attempt(ctx, r, ws, upload, class, opts, true)
	if err == nil {
		r.transition(StateSubmitted)
		return out, nil
	}
	if !opts.RemoveNoise || !errors.Is(err, stt.ErrSubmissionFailed) || errors.Is(err, stt.ErrPayloadTooLarge) {
		return nil, err
	}

	r.log.WithError(err).Warn("submission failed, retrying without noise removal")
	r.report.Retried = true
	r.transition(StateRetryWithoutNoiseRemoval)
	if o.metrics != nil {
		o.metrics.Retries.Inc()
	}

	retry := opts
	retry.RemoveNoise = false
	out, err = o.attempt(ctx, r, ws, upload, class, retry, false)
	if err != nil {
		return nil, err
	}
	r.transition(StateSubmitted)
	return out, nil
}

// attempt runs normalise through submit once. Stage transitions are only
// recorded on the first pass.
func (o *Orchestrator) attempt(ctx context.Context, r *run, ws *media.Workspace, upload media.Asset, class media.Classification, opts Options, first bool) (*Outcome, error) {
	record := func(s State) {
		if first {
			r.transition(s)
		}
	}

	normalized, converted, err := o.normalizer.Normalize(ctx, ws, upload, class)
	if err != nil {
		return nil, err
	}
	r.report.Converted = converted
	record(StateNormalized)

	filtered := o.engine.Reduce(ctx, ws, normalized, opts.RemoveNoise)
	r.report.Strategy = filtered.Strategy
	r.report.Gated = filtered.Gated
	r.report.GatingSkipped = filtered.GatingSkipped
	record(StateFiltered)

	checked, recompressed := o.guard.Enforce(ctx, ws, filtered.Asset)
	r.report.Recompressed = recompressed
	if checked.ByteSize > o.guard.Ceiling() && o.metrics != nil {
		o.metrics.Recompressions.WithLabelValues("oversized").Inc()
	} else if recompressed && o.metrics != nil {
		o.metrics.Recompressions.WithLabelValues("ok").Inc()
	}
	record(StateSizeChecked)

	req := stt.Request{FilePath: checked.Path}
	if opts.ForceEnglish {
		req.Language = o.language
	}
	resp, err := o.backend.Transcribe(ctx, req)
	if err != nil {
		if !errors.Is(err, stt.ErrSubmissionFailed) {
			err = fmt.Errorf("%w: %w", stt.ErrSubmissionFailed, err)
		}
		return nil, err
	}

	return &Outcome{
		Transcription: resp.Text,
		Optimizations: Optimizations{
			NoiseRemoval:  filtered.NoiseRemoved,
			ForcedEnglish: req.Language != "",
		},
	}, nil
}

func (o *Orchestrator) observe(rep Report) {
	if o.metrics == nil {
		return
	}
	o.metrics.Runs.WithLabelValues(string(rep.Final())).Inc()
	o.metrics.PipelineDuration.Observe(rep.Duration.Seconds())
	if rep.Converted {
		o.metrics.Conversions.Inc()
	}
}

func writeUpload(ws *media.Workspace, up Upload) (media.Asset, error) {
	if up.Data == nil {
		return media.Asset{}, errors.New("upload has no data")
	}
	path := ws.NewPath(up.Filename)
	f, err := os.Create(path)
	if err != nil {
		return media.Asset{}, fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(f, up.Data); err != nil {
		f.Close()
		return media.Asset{}, fmt.Errorf("store upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return media.Asset{}, fmt.Errorf("store upload: %w", err)
	}

	format := media.FormatUnknown
	if media.Classify(up.Filename) == media.ClassNativeAudio {
		format = media.FormatNativeAudio
	}
	return media.StatAsset(path, format, 0, false)
}
