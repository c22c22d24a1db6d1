package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	FFTSize = 2048
	HopSize = 512
	// GateFactor is how far above the noise floor a bin must sit to survive.
	GateFactor = 2.0
)

// SpectralGate zeroes every STFT bin whose magnitude is not above factor
// times the noise floor, then resynthesises with the original phase. The
// noise floor is the mean STFT magnitude over the first second of x. Output
// length equals input length.
func SpectralGate(x []float32, sampleRate int, factor float64) []float32 {
	out := make([]float32, len(x))
	if len(x) == 0 {
		return out
	}

	st := newSTFT(FFTSize, HopSize)

	head := x
	if sampleRate > 0 && len(head) > sampleRate {
		head = head[:sampleRate]
	}
	threshold := factor * st.meanMagnitude(head)

	st.each(x, func(spec []complex128) {
		for i, c := range spec {
			if cmplx.Abs(c) <= threshold {
				spec[i] = 0
			}
		}
	}, out)
	return out
}

type stft struct {
	nfft, hop int
	window    []float64
	fft       *fourier.FFT
	frame     []float64
	spec      []complex128
}

func newSTFT(nfft, hop int) *stft {
	return &stft{
		nfft:   nfft,
		hop:    hop,
		window: hann(nfft),
		fft:    fourier.NewFFT(nfft),
		frame:  make([]float64, nfft),
		spec:   make([]complex128, nfft/2+1),
	}
}

// hann is the periodic Hann window.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// frames returns the frame count of a centred STFT over n samples.
func (s *stft) frames(n int) int {
	return 1 + n/s.hop
}

// load fills s.frame with windowed frame t of the centred signal and
// transforms it into s.spec. Samples outside x read as zero.
func (s *stft) load(x []float32, t int) {
	start := t*s.hop - s.nfft/2
	for i := range s.frame {
		j := start + i
		v := 0.0
		if j >= 0 && j < len(x) {
			v = float64(x[j])
		}
		s.frame[i] = v * s.window[i]
	}
	s.fft.Coefficients(s.spec, s.frame)
}

func (s *stft) meanMagnitude(x []float32) float64 {
	n := s.frames(len(x))
	var sum float64
	for t := 0; t < n; t++ {
		s.load(x, t)
		for _, c := range s.spec {
			sum += cmplx.Abs(c)
		}
	}
	return sum / float64(n*len(s.spec))
}

// each runs mask over every frame and overlap-adds the inverse transform
// into out, normalised by the summed squared window.
func (s *stft) each(x []float32, mask func([]complex128), out []float32) {
	n := len(x)
	acc := make([]float64, n)
	norm := make([]float64, n)
	inv := make([]float64, s.nfft)
	scale := 1 / float64(s.nfft)

	for t := 0; t < s.frames(n); t++ {
		s.load(x, t)
		mask(s.spec)
		s.fft.Sequence(inv, s.spec)

		start := t*s.hop - s.nfft/2
		for i, v := range inv {
			j := start + i
			if j < 0 || j >= n {
				continue
			}
			w := s.window[i]
			acc[j] += v * scale * w
			norm[j] += w * w
		}
	}

	for j := range out {
		if norm[j] > 1e-10 {
			out[j] = float32(acc[j] / norm[j])
		} else {
			out[j] = float32(acc[j])
		}
	}
}
