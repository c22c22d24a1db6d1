package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// mp3Source wraps go-mp3, which always yields 16-bit little-endian stereo.
type mp3Source struct {
	f   *os.File
	dec *mp3.Decoder
	raw []byte
}

const mp3Channels = 2

func openMP3(f *os.File) (*mp3Source, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrUnsupportedEncoding, err)
	}
	return &mp3Source{f: f, dec: dec}, nil
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int   { return mp3Channels }
func (s *mp3Source) Close() error    { return s.f.Close() }

func (s *mp3Source) Frames() int64 {
	if n := s.dec.Length(); n > 0 {
		return n / (2 * mp3Channels)
	}
	return -1
}

func (s *mp3Source) Read(dst []float32) (int, error) {
	need := 2 * len(dst)
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]

	m, err := io.ReadFull(s.dec, raw)
	n := m / 2
	if n == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}
	return n, nil
}
