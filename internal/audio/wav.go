package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// Bytes 4..16 of every KSDATAFORMAT_SUBTYPE_* GUID that maps onto a plain
// format tag. The first four bytes carry the tag itself.
var ksSubtypeTail = []byte{0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

// wavEncoding resolves the sample encoding of a WAV file, looking through
// WAVE_FORMAT_EXTENSIBLE to its sub-format GUID.
func wavEncoding(r io.Reader) (uint16, error) {
	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return 0, err
	}
	for {
		ch, err := p.NextChunk()
		if err != nil {
			return 0, fmt.Errorf("fmt chunk: %w", err)
		}
		if ch.ID != riff.FmtID {
			ch.Drain()
			continue
		}

		body := make([]byte, ch.Size)
		if _, err := io.ReadFull(ch, body); err != nil {
			return 0, fmt.Errorf("fmt chunk: %w", err)
		}
		if len(body) < 16 {
			return 0, fmt.Errorf("fmt chunk of %d bytes", len(body))
		}
		tag := binary.LittleEndian.Uint16(body[0:2])
		if tag != wavFormatExtensible {
			return tag, nil
		}
		// cbSize(2) validBits(2) channelMask(4) then the 16-byte GUID
		if len(body) < 40 {
			return 0, fmt.Errorf("extensible fmt chunk of %d bytes", len(body))
		}
		guid := body[24:40]
		if !bytes.Equal(guid[4:], ksSubtypeTail) || binary.LittleEndian.Uint16(guid[2:4]) != 0 {
			return 0, fmt.Errorf("sub-format %x", guid)
		}
		return binary.LittleEndian.Uint16(guid[0:2]), nil
	}
}

func openWAV(f *os.File) (Source, error) {
	enc, err := wavEncoding(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV header", ErrUnsupportedEncoding)
	}

	switch enc {
	case wavFormatPCM:
		switch dec.BitDepth {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("%w: %d-bit WAV", ErrUnsupportedEncoding, dec.BitDepth)
		}
	case wavFormatFloat:
		if dec.BitDepth != 32 && dec.BitDepth != 64 {
			return nil, fmt.Errorf("%w: %d-bit float WAV", ErrUnsupportedEncoding, dec.BitDepth)
		}
	default:
		return nil, fmt.Errorf("%w: WAV format tag %#x", ErrUnsupportedEncoding, enc)
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("seek to PCM data: %w", err)
	}
	frameBytes := int64(dec.NumChans) * int64(dec.BitDepth/8)
	frames := int64(dec.PCMSize) / frameBytes

	if enc == wavFormatFloat {
		return &floatWAVSource{
			f:      f,
			dec:    dec,
			width:  int(dec.BitDepth / 8),
			frames: frames,
		}, nil
	}
	return &wavSource{
		f:      f,
		dec:    dec,
		scale:  1 / float32(int64(1)<<(dec.BitDepth-1)),
		frames: frames,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
			SourceBitDepth: int(dec.BitDepth),
		},
	}, nil
}

type wavSource struct {
	f      *os.File
	dec    *wav.Decoder
	buf    *goaudio.IntBuffer
	scale  float32
	frames int64
}

func (s *wavSource) SampleRate() int { return int(s.dec.SampleRate) }
func (s *wavSource) Channels() int   { return int(s.dec.NumChans) }
func (s *wavSource) Frames() int64   { return s.frames }
func (s *wavSource) Close() error    { return s.f.Close() }

func (s *wavSource) Read(dst []float32) (int, error) {
	if cap(s.buf.Data) < len(dst) {
		s.buf.Data = make([]int, len(dst))
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i, v := range s.buf.Data[:n] {
		dst[i] = float32(v) * s.scale
	}
	return n, nil
}

// floatWAVSource reads IEEE float samples straight from the data chunk;
// the go-audio decoder only understands integer PCM.
type floatWAVSource struct {
	f      *os.File
	dec    *wav.Decoder
	raw    []byte
	width  int
	frames int64
}

func (s *floatWAVSource) SampleRate() int { return int(s.dec.SampleRate) }
func (s *floatWAVSource) Channels() int   { return int(s.dec.NumChans) }
func (s *floatWAVSource) Frames() int64   { return s.frames }
func (s *floatWAVSource) Close() error    { return s.f.Close() }

func (s *floatWAVSource) Read(dst []float32) (int, error) {
	need := len(dst) * s.width
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]

	m, err := io.ReadFull(s.dec.PCMChunk, raw)
	n := m / s.width
	if n == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		b := raw[i*s.width:]
		if s.width == 8 {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		} else {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		}
	}
	return n, nil
}
