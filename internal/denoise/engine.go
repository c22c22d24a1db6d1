package denoise

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/nikhilbhutani/audioprep/internal/audio"
	"github.com/nikhilbhutani/audioprep/internal/dsp"
	"github.com/nikhilbhutani/audioprep/internal/media"
)

// Result describes the asset handed to the next stage.
type Result struct {
	Asset         media.Asset
	Strategy      Strategy
	NoiseRemoved  bool
	Gated         bool
	GatingSkipped bool
	Fallbacks     int
}

// Observer is told about every failed strategy attempt.
type Observer interface {
	StrategyFailed(s Strategy, err error)
	StrategyUsed(s Strategy, gatingSkipped bool)
}

// Engine runs the noise-reduction fallback chain over one asset.
type Engine struct {
	caps       media.Capabilities
	transcoder media.Transcoder
	th         Thresholds
	bandpass   dsp.Bandpass
	observer   Observer
	log        *logrus.Entry
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds replaces DefaultThresholds.
func WithThresholds(th Thresholds) Option {
	return func(e *Engine) { e.th = th }
}

// WithBandpass replaces the default speech band filter.
func WithBandpass(bp dsp.Bandpass) Option {
	return func(e *Engine) { e.bandpass = bp }
}

// WithObserver reports strategy outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates an Engine. transcoder is only used for the transcoder
// fallback and may be nil.
func NewEngine(caps media.Capabilities, transcoder media.Transcoder, log *logrus.Entry, opts ...Option) *Engine {
	e := &Engine{
		caps:       caps,
		transcoder: transcoder,
		th:         DefaultThresholds(),
		bandpass:   dsp.DefaultBandpass(),
		log:        log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reduce never fails: when every filtering strategy fails the input is
// returned as is and NoiseRemoved is false.
func (e *Engine) Reduce(ctx context.Context, ws *media.Workspace, in media.Asset, removeNoise bool) Result {
	if !removeNoise {
		return Result{Asset: in, Strategy: StrategyNone}
	}

	frames := int64(-1)
	if _, _, n, err := audio.Inspect(in.Path); err == nil {
		frames = n
	}
	primary := Classify(frames, in.ByteSize, e.th)

	log := e.log.WithFields(logrus.Fields{
		"stage":   "denoise",
		"frames":  frames,
		"bytes":   in.ByteSize,
		"primary": primary.String(),
	})

	fallbacks := 0
	for _, s := range Plan(primary) {
		res, err := e.attempt(ctx, ws, in, s)
		if err != nil {
			fallbacks++
			log.WithError(err).WithField("strategy", s.String()).Warn("noise reduction strategy failed")
			if e.observer != nil {
				e.observer.StrategyFailed(s, err)
			}
			continue
		}
		res.Fallbacks = fallbacks
		if res.Asset.Path != in.Path {
			ws.Supersede(in, res.Asset)
		}
		if e.observer != nil {
			e.observer.StrategyUsed(s, res.GatingSkipped)
		}
		log.WithFields(logrus.Fields{
			"strategy":       s.String(),
			"gated":          res.Gated,
			"gating_skipped": res.GatingSkipped,
		}).Info("noise reduction finished")
		return res
	}

	// identity cannot fail, so this is unreachable in practice
	return Result{Asset: in, Strategy: StrategyIdentity}
}

func (e *Engine) attempt(ctx context.Context, ws *media.Workspace, in media.Asset, s Strategy) (Result, error) {
	switch s {
	case StrategyWholeBuffer:
		return e.guard(func() (Result, error) { return e.wholeBuffer(ws, in) })
	case StrategyChunked:
		return e.guard(func() (Result, error) { return e.chunked(ws, in) })
	case StrategyTranscoder:
		return e.viaTranscoder(ctx, ws, in)
	case StrategyIdentity:
		return Result{Asset: in, Strategy: StrategyIdentity}, nil
	default:
		return Result{}, fmt.Errorf("unknown strategy %d", s)
	}
}

// guard turns a panic inside decoding or DSP into ErrMalformedAudio.
func (e *Engine) guard(fn func() (Result, error)) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, fmt.Errorf("%w: panic: %v", media.ErrMalformedAudio, r)
		}
	}()
	return fn()
}

func openSource(path string) (audio.Source, error) {
	src, err := audio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrMalformedAudio, err)
	}
	if src.SampleRate() <= 0 || src.Channels() <= 0 {
		src.Close()
		return nil, fmt.Errorf("%w: %d Hz, %d channels", media.ErrMalformedAudio, src.SampleRate(), src.Channels())
	}
	return src, nil
}

func (e *Engine) wholeBuffer(ws *media.Workspace, in media.Asset) (Result, error) {
	src, err := openSource(in.Path)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	frames := src.Frames()
	if frames < 0 {
		frames = in.ByteSize / 2
	}
	if need := wholeBufferBytes(frames, src.Channels()); need > e.th.MaxWholeBufferBytes {
		return Result{}, fmt.Errorf("%w: need ~%d bytes, budget %d", media.ErrMemoryExhausted, need, e.th.MaxWholeBufferBytes)
	}

	rate := src.SampleRate()
	sos, err := e.bandpass.Design(rate)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", media.ErrMalformedAudio, err)
	}

	samples, err := audio.ReadAllMono(src)
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode: %w", media.ErrMalformedAudio, err)
	}

	filtered := dsp.FiltFilt(sos, samples)
	res := Result{Strategy: StrategyWholeBuffer, NoiseRemoved: true}
	if len(filtered) <= e.th.GatingMaxSamples {
		filtered = dsp.SpectralGate(filtered, rate, dsp.GateFactor)
		res.Gated = true
	} else {
		res.GatingSkipped = true
	}

	out := ws.NewPath("processed_audio.wav")
	if err := audio.WriteWAV(out, filtered, rate); err != nil {
		ws.Discard(out)
		return Result{}, fmt.Errorf("write filtered audio: %w", err)
	}
	res.Asset, err = media.StatAsset(out, media.FormatConvertedAudio, rate, true)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// chunked keeps one block of ChunkFrames in memory. Filter state carries
// across blocks and spectral gating is never applied.
func (e *Engine) chunked(ws *media.Workspace, in media.Asset) (res Result, err error) {
	src, err := openSource(in.Path)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	rate := src.SampleRate()
	sos, err := e.bandpass.Design(rate)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", media.ErrMalformedAudio, err)
	}

	out := ws.NewPath("processed_audio.wav")
	w, err := audio.CreateWAV(out, rate)
	if err != nil {
		return Result{}, fmt.Errorf("create filtered audio: %w", err)
	}
	defer func() {
		if err != nil {
			w.Close()
			ws.Discard(out)
		}
	}()

	filter := dsp.NewFilter(sos)
	reader := audio.NewMonoReader(src)
	block := make([]float32, e.th.ChunkFrames)
	for {
		n, readErr := reader.ReadBlock(block)
		if n > 0 {
			filter.Process(block[:n])
			if err = w.Write(block[:n]); err != nil {
				return Result{}, err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return Result{}, fmt.Errorf("%w: decode block: %w", media.ErrMalformedAudio, readErr)
		}
	}

	if w.Frames() == 0 {
		err = fmt.Errorf("%w: no audio frames", media.ErrMalformedAudio)
		return Result{}, err
	}
	if err = w.Close(); err != nil {
		return Result{}, err
	}

	asset, err := media.StatAsset(out, media.FormatConvertedAudio, rate, true)
	if err != nil {
		return Result{}, err
	}
	return Result{Asset: asset, Strategy: StrategyChunked, NoiseRemoved: true, GatingSkipped: true}, nil
}

func (e *Engine) viaTranscoder(ctx context.Context, ws *media.Workspace, in media.Asset) (Result, error) {
	if !e.caps.TranscoderAvailable || e.transcoder == nil {
		return Result{}, fmt.Errorf("%w: no transcoder available", media.ErrConversionFailed)
	}
	out := ws.NewPath("canonical.wav")
	if err := e.transcoder.Extract(ctx, in.Path, out); err != nil {
		ws.Discard(out)
		return Result{}, fmt.Errorf("%w: %w", media.ErrConversionFailed, err)
	}
	asset, err := media.StatAsset(out, media.FormatConvertedAudio, media.CanonicalSampleRate, true)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", media.ErrConversionFailed, err)
	}
	return Result{Asset: asset, Strategy: StrategyTranscoder}, nil
}
