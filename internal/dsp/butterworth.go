// Package dsp holds the filter and spectral kernels used for noise reduction.
// Signals are float32 in [-1, 1]; accumulation is done in float64.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

var ErrCutoffOutOfRange = errors.New("cutoff outside (0, nyquist)")

// Section is one second-order stage: B are feed-forward and A feedback
// coefficients with A[0] == 1.
type Section struct {
	B [3]float64
	A [3]float64
}

// SOS is a cascade of second-order sections applied in order.
type SOS []Section

// ButterworthLowpass designs a digital low-pass via the bilinear transform.
func ButterworthLowpass(order int, cutoffHz, sampleRate float64) (SOS, error) {
	return butterworth(order, cutoffHz, sampleRate, false)
}

// ButterworthHighpass designs a digital high-pass via the bilinear transform.
func ButterworthHighpass(order int, cutoffHz, sampleRate float64) (SOS, error) {
	return butterworth(order, cutoffHz, sampleRate, true)
}

func butterworth(order int, cutoffHz, sampleRate float64, highpass bool) (SOS, error) {
	if order < 1 {
		return nil, fmt.Errorf("butterworth order %d: must be at least 1", order)
	}
	if sampleRate <= 0 || cutoffHz <= 0 || cutoffHz >= sampleRate/2 {
		return nil, fmt.Errorf("%w: %.1f Hz at %.0f Hz", ErrCutoffOutOfRange, cutoffHz, sampleRate)
	}

	// prewarped analog cutoff for a bilinear transform with T = 2
	k := math.Tan(math.Pi * cutoffHz / sampleRate)

	sos := make(SOS, 0, (order+1)/2)
	for i := 0; i < order/2; i++ {
		theta := math.Pi * float64(2*i+order+1) / float64(2*order)
		p := cmplx.Exp(complex(0, theta))

		var s complex128
		if highpass {
			s = complex(k, 0) / p
		} else {
			s = complex(k, 0) * p
		}
		z := (1 + s) / (1 - s)

		sec := Section{A: [3]float64{1, -2 * real(z), real(z)*real(z) + imag(z)*imag(z)}}
		if highpass {
			sec.B = [3]float64{1, -2, 1}
		} else {
			sec.B = [3]float64{1, 2, 1}
		}
		sos = append(sos, normalizeGain(sec, highpass))
	}

	if order%2 == 1 {
		// real pole at s = -k for both shapes
		zp := (1 - k) / (1 + k)
		sec := Section{A: [3]float64{1, -zp, 0}}
		if highpass {
			sec.B = [3]float64{1, -1, 0}
		} else {
			sec.B = [3]float64{1, 1, 0}
		}
		sos = append(sos, normalizeGain(sec, highpass))
	}
	return sos, nil
}

// normalizeGain scales B for unit gain at DC (low-pass) or Nyquist (high-pass).
func normalizeGain(sec Section, highpass bool) Section {
	sign := 1.0
	if highpass {
		sign = -1
	}
	num := sec.B[0] + sign*sec.B[1] + sec.B[2]
	den := sec.A[0] + sign*sec.A[1] + sec.A[2]
	g := den / num
	for i := range sec.B {
		sec.B[i] *= g
	}
	return sec
}

// Response evaluates |H(e^jw)| of the cascade at freqHz.
func (s SOS) Response(freqHz, sampleRate float64) float64 {
	w := 2 * math.Pi * freqHz / sampleRate
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	h := complex(1, 0)
	for _, sec := range s {
		num := complex(sec.B[0], 0) + complex(sec.B[1], 0)*z1 + complex(sec.B[2], 0)*z2
		den := complex(sec.A[0], 0) + complex(sec.A[1], 0)*z1 + complex(sec.A[2], 0)*z2
		h *= num / den
	}
	return cmplx.Abs(h)
}

// Bandpass is the high-pass then low-pass cascade used before gating.
type Bandpass struct {
	Order      int
	HighpassHz float64
	LowpassHz  float64
}

func DefaultBandpass() Bandpass {
	return Bandpass{Order: 5, HighpassHz: 100, LowpassHz: 8000}
}

// Design builds the cascade for sampleRate. A low-pass at or above Nyquist
// has nothing to remove and is left out.
func (b Bandpass) Design(sampleRate int) (SOS, error) {
	fs := float64(sampleRate)
	hp, err := ButterworthHighpass(b.Order, b.HighpassHz, fs)
	if err != nil {
		return nil, fmt.Errorf("highpass: %w", err)
	}
	if b.LowpassHz <= 0 || b.LowpassHz >= fs/2 {
		return hp, nil
	}
	lp, err := ButterworthLowpass(b.Order, b.LowpassHz, fs)
	if err != nil {
		return nil, fmt.Errorf("lowpass: %w", err)
	}
	return append(hp, lp...), nil
}
