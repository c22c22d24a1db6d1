// Package audio decodes WAV, Ogg Vorbis, MP3 and FLAC into float32 samples
// and writes 16-bit mono WAV.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// ErrUnsupportedEncoding means the file is not something this package can
// decode; an external transcoder may still handle it.
var ErrUnsupportedEncoding = errors.New("audio encoding not decodable in process")

// Source yields interleaved samples in [-1, 1]. Read returns io.EOF once
// the stream is exhausted. Frames is -1 when the length is unknown.
type Source interface {
	SampleRate() int
	Channels() int
	Frames() int64
	Read(dst []float32) (int, error)
	Close() error
}

// Inspect opens path just long enough to read its stream parameters.
func Inspect(path string) (sampleRate, channels int, frames int64, err error) {
	src, err := Open(path)
	if err != nil {
		return 0, 0, 0, err
	}
	defer src.Close()
	return src.SampleRate(), src.Channels(), src.Frames(), nil
}

// Open sniffs the container from its magic bytes, not the file name.
// A decoder that panics on a corrupt header is reported as
// ErrUnsupportedEncoding.
func Open(path string) (src Source, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			f.Close()
			src, err = nil, fmt.Errorf("%w: decoder panic: %v", ErrUnsupportedEncoding, r)
		}
	}()

	var magic [12]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: header: %v", ErrUnsupportedEncoding, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	switch {
	case bytes.Equal(magic[0:4], []byte("RIFF")) && bytes.Equal(magic[8:12], []byte("WAVE")):
		src, err = openWAV(f)
	case bytes.Equal(magic[0:4], []byte("OggS")):
		src, err = openOgg(f)
	case bytes.Equal(magic[0:4], []byte("fLaC")):
		src, err = openFLAC(f)
	case isMP3(magic[:]):
		src, err = openMP3(f)
	default:
		err = fmt.Errorf("%w: unrecognised container", ErrUnsupportedEncoding)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// isMP3 accepts an ID3v2 tag or a bare MPEG audio frame sync.
func isMP3(magic []byte) bool {
	if bytes.Equal(magic[0:3], []byte("ID3")) {
		return true
	}
	return magic[0] == 0xFF && magic[1]&0xE0 == 0xE0 && magic[1]&0x06 != 0
}

type oggSource struct {
	f   *os.File
	dec *oggvorbis.Reader
}

func openOgg(f *os.File) (*oggSource, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: ogg: %v", ErrUnsupportedEncoding, err)
	}
	return &oggSource{f: f, dec: dec}, nil
}

func (s *oggSource) SampleRate() int { return s.dec.SampleRate() }
func (s *oggSource) Channels() int   { return s.dec.Channels() }
func (s *oggSource) Close() error    { return s.f.Close() }

func (s *oggSource) Frames() int64 {
	if n := s.dec.Length(); n > 0 {
		return n
	}
	return -1
}

func (s *oggSource) Read(dst []float32) (int, error) {
	return s.dec.Read(dst)
}
