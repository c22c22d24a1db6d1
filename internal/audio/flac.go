package audio

import (
	"fmt"
	"os"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

type flacSource struct {
	f       *os.File
	stream  *flac.Stream
	scale   float32
	buf     []float32
	pending []float32
}

func openFLAC(f *os.File) (*flacSource, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("%w: flac: %v", ErrUnsupportedEncoding, err)
	}
	bps := stream.Info.BitsPerSample
	if bps < 4 || bps > 32 {
		return nil, fmt.Errorf("%w: %d-bit FLAC", ErrUnsupportedEncoding, bps)
	}
	return &flacSource{
		f:      f,
		stream: stream,
		scale:  1 / float32(int64(1)<<(bps-1)),
	}, nil
}

func (s *flacSource) SampleRate() int { return int(s.stream.Info.SampleRate) }
func (s *flacSource) Channels() int   { return int(s.stream.Info.NChannels) }
func (s *flacSource) Close() error    { return s.f.Close() }

func (s *flacSource) Frames() int64 {
	if n := s.stream.Info.NSamples; n > 0 {
		return int64(n)
	}
	return -1
}

// Read hands out the current frame before parsing the next one. ParseNext
// returns io.EOF after the last frame.
func (s *flacSource) Read(dst []float32) (int, error) {
	for len(s.pending) == 0 {
		fr, err := s.stream.ParseNext()
		if err != nil {
			return 0, err
		}
		s.interleave(fr)
	}
	n := copy(dst, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *flacSource) interleave(fr *frame.Frame) {
	s.buf = s.buf[:0]
	for i := 0; i < int(fr.BlockSize); i++ {
		for _, sub := range fr.Subframes {
			s.buf = append(s.buf, float32(sub.Samples[i])*s.scale)
		}
	}
	s.pending = s.buf
}
