package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter streams mono float32 samples into a 16-bit PCM WAV file.
// Samples beyond full scale saturate.
type WAVWriter struct {
	f      *os.File
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	frames int64
	closed bool
}

func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &WAVWriter{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, 16, 1, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

func (w *WAVWriter) Write(samples []float32) error {
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, v := range samples {
		w.buf.Data[i] = toPCM16(v)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	w.frames += int64(len(samples))
	return nil
}

func (w *WAVWriter) Frames() int64 { return w.frames }

// Close finalises the header and closes the file. Later calls are no-ops.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("finalise wav: %w", encErr)
	}
	return fileErr
}

func toPCM16(v float32) int {
	s := math.Round(float64(v) * 32767)
	switch {
	case s > math.MaxInt16:
		return math.MaxInt16
	case s < math.MinInt16:
		return math.MinInt16
	}
	return int(s)
}

// WriteWAV writes samples as a complete mono WAV file.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	w, err := CreateWAV(path, sampleRate)
	if err != nil {
		return err
	}
	if err := w.Write(samples); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
