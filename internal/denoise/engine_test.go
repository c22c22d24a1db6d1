package denoise

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/nikhilbhutani/audioprep/internal/audio"
	"github.com/nikhilbhutani/audioprep/internal/dsp"
	"github.com/nikhilbhutani/audioprep/internal/logger"
	"github.com/nikhilbhutani/audioprep/internal/media"
)

type recordingObserver struct {
	failed []Strategy
	errs   []error
	used   []Strategy
}

func (o *recordingObserver) StrategyFailed(s Strategy, err error) {
	o.failed = append(o.failed, s)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) StrategyUsed(s Strategy, _ bool) {
	o.used = append(o.used, s)
}

type fakeTranscoder struct {
	calls int
}

func (f *fakeTranscoder) Extract(_ context.Context, _, out string) error {
	f.calls++
	return audio.WriteWAV(out, make([]float32, 160), media.CanonicalSampleRate)
}

func (f *fakeTranscoder) Compress(context.Context, string, string, int) error {
	return errors.New("not used")
}

func newWorkspace(t *testing.T) *media.Workspace {
	t.Helper()
	ws, err := media.NewWorkspace(t.TempDir(), logger.Nop().Entry)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Sweep() })
	return ws
}

func wavAsset(t *testing.T, ws *media.Workspace, samples []float32, rate int, derived bool) media.Asset {
	t.Helper()
	path := ws.NewPath("input.wav")
	if err := audio.WriteWAV(path, samples, rate); err != nil {
		t.Fatal(err)
	}
	asset, err := media.StatAsset(path, media.FormatNativeAudio, rate, derived)
	if err != nil {
		t.Fatal(err)
	}
	return asset
}

func tone(n, rate int, freq, amp float64) []float32 {
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return x
}

func readMono(t *testing.T, path string) ([]float32, int) {
	t.Helper()
	src, err := audio.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer src.Close()
	samples, err := audio.ReadAllMono(src)
	if err != nil {
		t.Fatal(err)
	}
	return samples, src.SampleRate()
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name   string
		frames int64
		bytes  int64
		want   Strategy
	}{
		{name: "small", frames: 16000, bytes: 32044, want: StrategyWholeBuffer},
		{name: "at threshold", frames: 10_000_000, want: StrategyWholeBuffer},
		{name: "over threshold", frames: 10_000_001, want: StrategyChunked},
		{name: "five minutes at 44.1k", frames: 5 * 60 * 44100, want: StrategyChunked},
		{name: "unknown small", frames: -1, bytes: 1 << 20, want: StrategyWholeBuffer},
		{name: "unknown huge", frames: -1, bytes: 30_000_000, want: StrategyChunked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.frames, tt.bytes, th); got != tt.want {
				t.Fatalf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlanOrder(t *testing.T) {
	whole := Plan(StrategyWholeBuffer)
	if len(whole) != 4 || whole[0] != StrategyWholeBuffer || whole[1] != StrategyChunked || whole[3] != StrategyIdentity {
		t.Fatalf("whole-buffer plan = %v", whole)
	}
	chunked := Plan(StrategyChunked)
	if len(chunked) != 3 || chunked[0] != StrategyChunked || chunked[1] != StrategyTranscoder {
		t.Fatalf("chunked plan = %v", chunked)
	}
}

func TestReduceDisabledReturnsInput(t *testing.T) {
	ws := newWorkspace(t)
	in := wavAsset(t, ws, tone(1000, 16000, 440, 0.3), 16000, false)

	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry).Reduce(context.Background(), ws, in, false)
	if res.Asset != in || res.NoiseRemoved || res.Strategy != StrategyNone {
		t.Fatalf("res = %+v", res)
	}
}

func TestReduceWholeBuffer(t *testing.T) {
	ws := newWorkspace(t)
	in := wavAsset(t, ws, tone(32000, 16000, 440, 0.3), 16000, true)

	obs := &recordingObserver{}
	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry, WithObserver(obs)).
		Reduce(context.Background(), ws, in, true)

	if res.Strategy != StrategyWholeBuffer || !res.NoiseRemoved || !res.Gated || res.GatingSkipped {
		t.Fatalf("res = %+v", res)
	}
	if len(obs.failed) != 0 || len(obs.used) != 1 {
		t.Fatalf("observer = %+v", obs)
	}
	out, rate := readMono(t, res.Asset.Path)
	if len(out) != 32000 || rate != 16000 {
		t.Fatalf("output %d samples at %d Hz", len(out), rate)
	}
	if _, err := os.Stat(in.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("derived input should be superseded: %v", err)
	}
}

func TestReduceSilenceStaysSilent(t *testing.T) {
	ws := newWorkspace(t)
	in := wavAsset(t, ws, make([]float32, 20000), 16000, false)

	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry).Reduce(context.Background(), ws, in, true)
	if res.Strategy != StrategyWholeBuffer {
		t.Fatalf("strategy = %s", res.Strategy)
	}
	out, _ := readMono(t, res.Asset.Path)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %g, want silence", i, v)
		}
	}
}

func TestReduceGatingSkippedAboveThreshold(t *testing.T) {
	ws := newWorkspace(t)
	in := wavAsset(t, ws, tone(8000, 16000, 440, 0.3), 16000, false)

	th := DefaultThresholds()
	th.GatingMaxSamples = 4000
	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry, WithThresholds(th)).
		Reduce(context.Background(), ws, in, true)
	if res.Strategy != StrategyWholeBuffer || res.Gated || !res.GatingSkipped || !res.NoiseRemoved {
		t.Fatalf("res = %+v", res)
	}
}

func TestReduceMemoryExhaustedFallsBackToChunked(t *testing.T) {
	ws := newWorkspace(t)
	in := wavAsset(t, ws, tone(16000, 16000, 440, 0.3), 16000, false)

	th := DefaultThresholds()
	th.MaxWholeBufferBytes = 1024
	obs := &recordingObserver{}
	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry, WithThresholds(th), WithObserver(obs)).
		Reduce(context.Background(), ws, in, true)

	if res.Strategy != StrategyChunked || !res.NoiseRemoved || res.Fallbacks != 1 {
		t.Fatalf("res = %+v", res)
	}
	if len(obs.errs) != 1 || !errors.Is(obs.errs[0], media.ErrMemoryExhausted) {
		t.Fatalf("observer errs = %v", obs.errs)
	}
}

func TestReduceUndecodableUsesTranscoder(t *testing.T) {
	ws := newWorkspace(t)
	path := filepath.Join(ws.Dir(), "talk.mp3")
	if err := os.WriteFile(path, []byte("ID3\x04\x00\x00\x00\x00\x00\x00not really mp3"), 0o600); err != nil {
		t.Fatal(err)
	}
	in, err := media.StatAsset(path, media.FormatNativeAudio, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	tc := &fakeTranscoder{}
	obs := &recordingObserver{}
	res := NewEngine(media.Capabilities{TranscoderAvailable: true}, tc, logger.Nop().Entry, WithObserver(obs)).
		Reduce(context.Background(), ws, in, true)

	if res.Strategy != StrategyTranscoder || res.NoiseRemoved || tc.calls != 1 {
		t.Fatalf("res = %+v calls = %d", res, tc.calls)
	}
	if len(obs.errs) != 2 || !errors.Is(obs.errs[0], media.ErrMalformedAudio) {
		t.Fatalf("observer errs = %v", obs.errs)
	}
}

func TestReduceUndecodableWithoutTranscoderIsIdentity(t *testing.T) {
	ws := newWorkspace(t)
	path := filepath.Join(ws.Dir(), "talk.m4a")
	if err := os.WriteFile(path, []byte("\x00\x00\x00\x20ftypM4A \x00\x00\x00\x00"), 0o600); err != nil {
		t.Fatal(err)
	}
	in, err := media.StatAsset(path, media.FormatNativeAudio, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry).Reduce(context.Background(), ws, in, true)
	if res.Strategy != StrategyIdentity || res.NoiseRemoved || res.Asset != in || res.Fallbacks != 3 {
		t.Fatalf("res = %+v", res)
	}
}

func TestChunkedMatchesCausalFilter(t *testing.T) {
	const rate = 22050
	ws := newWorkspace(t)
	signal := tone(10_000, rate, 300, 0.4)
	for i := range signal {
		signal[i] += float32(0.05 * math.Sin(float64(i)*0.7))
	}
	in := wavAsset(t, ws, signal, rate, false)

	th := DefaultThresholds()
	th.LargeFileFrames = 1000
	th.ChunkFrames = 777
	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry, WithThresholds(th)).
		Reduce(context.Background(), ws, in, true)
	if res.Strategy != StrategyChunked || res.Gated {
		t.Fatalf("res = %+v", res)
	}

	decoded, _ := readMono(t, in.Path)
	sos, err := dsp.DefaultBandpass().Design(rate)
	if err != nil {
		t.Fatal(err)
	}
	dsp.NewFilter(sos).Process(decoded)

	got, _ := readMono(t, res.Asset.Path)
	if len(got) != len(decoded) {
		t.Fatalf("len = %d, want %d", len(got), len(decoded))
	}
	for i := range got {
		if math.Abs(float64(got[i]-decoded[i])) > 2.0/32767 {
			t.Fatalf("sample %d: chunked=%g whole=%g", i, got[i], decoded[i])
		}
	}
}

func TestGuardRecoversPanic(t *testing.T) {
	e := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry)
	_, err := e.guard(func() (Result, error) {
		var s []float32
		_ = s[3]
		return Result{}, nil
	})
	if !errors.Is(err, media.ErrMalformedAudio) {
		t.Fatalf("err = %v, want ErrMalformedAudio", err)
	}
}

func TestFiveMinuteRecordingUsesChunkedPath(t *testing.T) {
	if testing.Short() {
		t.Skip("writes a 26 MB fixture")
	}
	const rate = 44100
	const frames = 5 * 60 * rate

	ws := newWorkspace(t)
	path := ws.NewPath("long.wav")
	w, err := audio.CreateWAV(path, rate)
	if err != nil {
		t.Fatal(err)
	}
	block := tone(rate, rate, 440, 0.2)
	for written := 0; written < frames; written += len(block) {
		if err := w.Write(block); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	in, err := media.StatAsset(path, media.FormatNativeAudio, rate, false)
	if err != nil {
		t.Fatal(err)
	}

	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry).Reduce(context.Background(), ws, in, true)
	if res.Strategy != StrategyChunked || res.Gated || !res.NoiseRemoved {
		t.Fatalf("res = %+v", res)
	}

	src, err := audio.Open(res.Asset.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if src.Frames() != frames {
		t.Fatalf("output frames = %d, want %d", src.Frames(), frames)
	}
	buf := make([]float32, 4096)
	if n, err := src.Read(buf); err != nil && err != io.EOF || n == 0 {
		t.Fatalf("read output: n=%d err=%v", n, err)
	}
}

func TestChunkedFailureLeavesNoOutput(t *testing.T) {
	ws := newWorkspace(t)
	in := wavAsset(t, ws, nil, 16000, false)

	th := DefaultThresholds()
	th.LargeFileFrames = -1
	obs := &recordingObserver{}
	res := NewEngine(media.Capabilities{}, nil, logger.Nop().Entry, WithThresholds(th), WithObserver(obs)).
		Reduce(context.Background(), ws, in, true)

	if res.Strategy != StrategyIdentity || res.NoiseRemoved {
		t.Fatalf("res = %+v", res)
	}
	if len(obs.errs) == 0 || obs.failed[0] != StrategyChunked || !errors.Is(obs.errs[0], media.ErrMalformedAudio) {
		t.Fatalf("observer = %+v", obs)
	}
	leftovers, err := filepath.Glob(filepath.Join(ws.Dir(), "*processed_audio*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("partial output left behind: %v", leftovers)
	}
}

// silentMP3 writes MPEG-1 Layer III mono frames at 128 kbps and 44.1 kHz
// whose side info and main data are all zero.
func silentMP3(frames int) []byte {
	const frameSize = 144 * 128000 / 44100
	out := make([]byte, 0, frames*frameSize)
	for i := 0; i < frames; i++ {
		fr := make([]byte, frameSize)
		copy(fr, []byte{0xFF, 0xFB, 0x90, 0xC4})
		out = append(out, fr...)
	}
	return out
}

func TestReduceMP3IsFiltered(t *testing.T) {
	ws := newWorkspace(t)
	path := filepath.Join(ws.Dir(), "voice.mp3")
	if err := os.WriteFile(path, silentMP3(20), 0o600); err != nil {
		t.Fatal(err)
	}
	in, err := media.StatAsset(path, media.FormatNativeAudio, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	tc := &fakeTranscoder{}
	obs := &recordingObserver{}
	res := NewEngine(media.Capabilities{TranscoderAvailable: true}, tc, logger.Nop().Entry, WithObserver(obs)).
		Reduce(context.Background(), ws, in, true)

	if res.Strategy != StrategyWholeBuffer || !res.NoiseRemoved || tc.calls != 0 {
		t.Fatalf("res = %+v transcoder calls = %d", res, tc.calls)
	}
	if len(obs.failed) != 0 {
		t.Fatalf("failed strategies = %v errs = %v", obs.failed, obs.errs)
	}
	out, rate := readMono(t, res.Asset.Path)
	if rate != 44100 || len(out) != 20*1152 {
		t.Fatalf("output %d samples at %d Hz", len(out), rate)
	}
}
