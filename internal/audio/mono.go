package audio

import (
	"io"
)

const maxEmptyReads = 100

// MonoReader averages a Source down to one channel, keeping frames aligned
// across reads that end mid-frame.
type MonoReader struct {
	src     Source
	ch      int
	raw     []float32
	pending []float32
	eof     bool
}

func NewMonoReader(src Source) *MonoReader {
	ch := src.Channels()
	if ch < 1 {
		ch = 1
	}
	return &MonoReader{src: src, ch: ch, pending: make([]float32, 0, ch)}
}

// ReadBlock fills dst with up to len(dst) mono frames and only returns
// short at end of stream. It returns io.EOF when no frames remain.
func (r *MonoReader) ReadBlock(dst []float32) (int, error) {
	filled, empty := 0, 0
	for filled < len(dst) && !r.eof {
		need := (len(dst) - filled) * r.ch
		if cap(r.raw) < need {
			r.raw = make([]float32, need)
		}
		buf := r.raw[:need]

		have := copy(buf, r.pending)
		r.pending = r.pending[:0]

		n, err := r.src.Read(buf[have:])
		have += n

		frames := have / r.ch
		downmix(dst[filled:filled+frames], buf[:frames*r.ch], r.ch)
		filled += frames
		r.pending = append(r.pending, buf[frames*r.ch:have]...)

		if err == io.EOF {
			r.eof = true
			break
		}
		if err != nil {
			return filled, err
		}
		if n == 0 {
			if empty++; empty > maxEmptyReads {
				return filled, io.ErrNoProgress
			}
		}
	}
	if filled == 0 && r.eof {
		return 0, io.EOF
	}
	return filled, nil
}

func downmix(dst, interleaved []float32, ch int) {
	if ch == 1 {
		copy(dst, interleaved)
		return
	}
	inv := 1 / float32(ch)
	for i := range dst {
		var sum float32
		for _, v := range interleaved[i*ch : (i+1)*ch] {
			sum += v
		}
		dst[i] = sum * inv
	}
}

// ReadAllMono decodes the whole stream into memory.
func ReadAllMono(src Source) ([]float32, error) {
	var out []float32
	if n := src.Frames(); n > 0 {
		out = make([]float32, 0, n)
	}
	r := NewMonoReader(src)
	block := make([]float32, 1<<16)
	for {
		n, err := r.ReadBlock(block)
		out = append(out, block[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
