package dsp

// Filter runs an SOS cascade causally in transposed direct form II. State
// persists between Process calls so a long signal can be fed in blocks.
type Filter struct {
	sos   SOS
	state [][2]float64
}

func NewFilter(sos SOS) *Filter {
	return &Filter{sos: sos, state: make([][2]float64, len(sos))}
}

// Process filters x in place.
func (f *Filter) Process(x []float32) {
	for n, v := range x {
		y := float64(v)
		for i := range f.sos {
			y = step(&f.sos[i], &f.state[i], y)
		}
		x[n] = float32(y)
	}
}

func (f *Filter) Reset() {
	for i := range f.state {
		f.state[i] = [2]float64{}
	}
}

func step(sec *Section, z *[2]float64, x float64) float64 {
	y := sec.B[0]*x + z[0]
	z[0] = sec.B[1]*x - sec.A[1]*y + z[1]
	z[1] = sec.B[2]*x - sec.A[2]*y
	return y
}

func filter64(sos SOS, state [][2]float64, x []float64) {
	for n, v := range x {
		y := v
		for i := range sos {
			y = step(&sos[i], &state[i], y)
		}
		x[n] = y
	}
}

// steadyState returns per-section initial conditions for a unit step input,
// scaled by the DC gain of the preceding sections.
func steadyState(sos SOS) [][2]float64 {
	zi := make([][2]float64, len(sos))
	scale := 1.0
	for i, sec := range sos {
		sumA := sec.A[0] + sec.A[1] + sec.A[2]
		g := 0.0
		if sumA != 0 {
			g = (sec.B[0] + sec.B[1] + sec.B[2]) / sumA
		}
		z1 := sec.B[2] - sec.A[2]*g
		z0 := sec.B[1] - sec.A[1]*g + z1
		zi[i] = [2]float64{z0 * scale, z1 * scale}
		scale *= g
	}
	return zi
}

// FiltFilt applies sos forward and backward for zero phase distortion. The
// signal is padded by odd reflection at both ends and each pass starts from
// the steady state of its first sample, matching the usual sosfiltfilt edges.
func FiltFilt(sos SOS, x []float32) []float32 {
	n := len(x)
	out := make([]float32, n)
	if n == 0 || len(sos) == 0 {
		copy(out, x)
		return out
	}

	pad := 3 * (2*len(sos) + 1)
	if pad > n-1 {
		pad = n - 1
	}

	ext := make([]float64, n+2*pad)
	first, last := float64(x[0]), float64(x[n-1])
	for i := 0; i < pad; i++ {
		ext[i] = 2*first - float64(x[pad-i])
		ext[pad+n+i] = 2*last - float64(x[n-2-i])
	}
	for i, v := range x {
		ext[pad+i] = float64(v)
	}

	zi := steadyState(sos)
	state := make([][2]float64, len(sos))

	seed(state, zi, ext[0])
	filter64(sos, state, ext)

	reverse(ext)
	seed(state, zi, ext[0])
	filter64(sos, state, ext)
	reverse(ext)

	for i := range out {
		out[i] = float32(ext[pad+i])
	}
	return out
}

func seed(state, zi [][2]float64, x0 float64) {
	for i := range state {
		state[i] = [2]float64{zi[i][0] * x0, zi[i][1] * x0}
	}
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
