package dsp

import (
	"math"
	"math/rand"
	"testing"
)

func sine(freq float64, sampleRate, n int, amp float64) []float32 {
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return x
}

func rms(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestButterworthCutoffIsHalfPower(t *testing.T) {
	const fs = 44100.0
	tests := []struct {
		name   string
		design func(int, float64, float64) (SOS, error)
		cutoff float64
		pass   float64
		stop   float64
	}{
		{name: "lowpass", design: ButterworthLowpass, cutoff: 8000, pass: 500, stop: 20000},
		{name: "highpass", design: ButterworthHighpass, cutoff: 100, pass: 2000, stop: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sos, err := tt.design(5, tt.cutoff, fs)
			if err != nil {
				t.Fatalf("design: %v", err)
			}
			if len(sos) != 3 {
				t.Fatalf("sections = %d, want 3", len(sos))
			}
			if got := sos.Response(tt.cutoff, fs); math.Abs(got-math.Sqrt2/2) > 1e-6 {
				t.Fatalf("|H(cutoff)| = %f, want %f", got, math.Sqrt2/2)
			}
			if got := sos.Response(tt.pass, fs); math.Abs(got-1) > 1e-3 {
				t.Fatalf("|H(pass)| = %f", got)
			}
			if got := sos.Response(tt.stop, fs); got > 0.01 {
				t.Fatalf("|H(stop)| = %f", got)
			}
		})
	}
}

func TestButterworthRejectsBadCutoff(t *testing.T) {
	if _, err := ButterworthLowpass(5, 8000, 16000); err == nil {
		t.Fatal("expected error for cutoff at nyquist")
	}
	if _, err := ButterworthHighpass(0, 100, 16000); err == nil {
		t.Fatal("expected error for order 0")
	}
}

func TestBandpassSkipsLowpassAtNyquist(t *testing.T) {
	bp := DefaultBandpass()

	at16k, err := bp.Design(16000)
	if err != nil {
		t.Fatalf("Design(16000): %v", err)
	}
	if len(at16k) != 3 {
		t.Fatalf("16 kHz sections = %d, want high-pass only (3)", len(at16k))
	}

	at44k, err := bp.Design(44100)
	if err != nil {
		t.Fatalf("Design(44100): %v", err)
	}
	if len(at44k) != 6 {
		t.Fatalf("44.1 kHz sections = %d, want 6", len(at44k))
	}
}

func TestChunkedFilteringMatchesWholeSignal(t *testing.T) {
	sos, err := DefaultBandpass().Design(44100)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(7))
	x := make([]float32, 50_000)
	for i := range x {
		x[i] = float32(rng.NormFloat64() * 0.2)
	}

	whole := append([]float32(nil), x...)
	NewFilter(sos).Process(whole)

	chunked := append([]float32(nil), x...)
	f := NewFilter(sos)
	for start := 0; start < len(chunked); start += 4099 {
		end := min(start+4099, len(chunked))
		f.Process(chunked[start:end])
	}

	for i := range whole {
		if math.Abs(float64(whole[i]-chunked[i])) > 1e-6 {
			t.Fatalf("sample %d: whole=%g chunked=%g", i, whole[i], chunked[i])
		}
	}
}

func TestCausalAndZeroPhaseAgreeInPassband(t *testing.T) {
	const fs = 44100
	sos, err := DefaultBandpass().Design(fs)
	if err != nil {
		t.Fatal(err)
	}
	x := sine(1000, fs, fs, 0.5)

	causal := append([]float32(nil), x...)
	NewFilter(sos).Process(causal)
	zero := FiltFilt(sos, x)

	// skip the causal start-up transient
	a, b := rms(causal[fs/4:3*fs/4]), rms(zero[fs/4:3*fs/4])
	if math.Abs(a-b)/b > 0.01 {
		t.Fatalf("passband RMS causal=%f zero-phase=%f", a, b)
	}
}

func TestFiltFiltHasNoPhaseShift(t *testing.T) {
	const fs = 16000
	sos, err := DefaultBandpass().Design(fs)
	if err != nil {
		t.Fatal(err)
	}
	x := sine(1000, fs, fs, 0.5)
	y := FiltFilt(sos, x)

	for i := fs / 4; i < 3*fs/4; i++ {
		if d := math.Abs(float64(y[i] - x[i])); d > 0.01 {
			t.Fatalf("sample %d differs by %f", i, d)
		}
	}
}

func TestFiltFiltShortInputs(t *testing.T) {
	sos, err := DefaultBandpass().Design(16000)
	if err != nil {
		t.Fatal(err)
	}
	if got := FiltFilt(sos, nil); len(got) != 0 {
		t.Fatalf("len = %d", len(got))
	}
	if got := FiltFilt(sos, []float32{0.25}); len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	if got := FiltFilt(sos, []float32{0.1, 0.2, 0.3}); len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestSilenceStaysSilent(t *testing.T) {
	sos, err := DefaultBandpass().Design(44100)
	if err != nil {
		t.Fatal(err)
	}
	silence := make([]float32, 30_000)

	for i, v := range FiltFilt(sos, silence) {
		if v != 0 {
			t.Fatalf("filtfilt sample %d = %g", i, v)
		}
	}

	causal := make([]float32, len(silence))
	NewFilter(sos).Process(causal)
	for i, v := range causal {
		if v != 0 {
			t.Fatalf("causal sample %d = %g", i, v)
		}
	}

	for i, v := range SpectralGate(silence, 44100, GateFactor) {
		if v != 0 {
			t.Fatalf("gate sample %d = %g", i, v)
		}
	}
}

func TestSpectralGateReconstructsWhenNothingIsMasked(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x := make([]float32, 20_000)
	for i := range x {
		x[i] = float32(rng.Float64()*2-1) * 0.5
	}

	y := SpectralGate(x, 16000, 0)
	if len(y) != len(x) {
		t.Fatalf("len = %d, want %d", len(y), len(x))
	}
	for i := range x {
		if math.Abs(float64(y[i]-x[i])) > 1e-4 {
			t.Fatalf("sample %d: got %g want %g", i, y[i], x[i])
		}
	}
}

func TestSpectralGateSuppressesNoiseFloor(t *testing.T) {
	const fs = 16000
	rng := rand.New(rand.NewSource(11))
	x := make([]float32, 3*fs)
	tone := sine(440, fs, len(x), 0.5)
	for i := range x {
		x[i] = float32(rng.NormFloat64() * 0.01)
		if i >= fs {
			x[i] += tone[i]
		}
	}

	y := SpectralGate(x, fs, GateFactor)

	before, after := rms(x[:fs-FFTSize]), rms(y[:fs-FFTSize])
	if after > 0.6*before {
		t.Fatalf("noise-only RMS %f -> %f, expected strong reduction", before, after)
	}

	toneRMS := rms(tone[3*fs/2 : 5*fs/2])
	kept := rms(y[3*fs/2 : 5*fs/2])
	if math.Abs(kept-toneRMS)/toneRMS > 0.1 {
		t.Fatalf("tone RMS %f -> %f", toneRMS, kept)
	}
}

func TestHannIsPeriodic(t *testing.T) {
	w := hann(4)
	want := []float64{0, 0.5, 1, 0.5}
	for i := range w {
		if math.Abs(w[i]-want[i]) > 1e-12 {
			t.Fatalf("hann(4) = %v", w)
		}
	}
}
