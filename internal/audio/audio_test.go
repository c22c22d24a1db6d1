package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

func writeStereoWAV(t *testing.T, path string, left, right []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	data := make([]int, 0, 2*len(left))
	for i := range left {
		data = append(data, left[i], right[i])
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenStereoWAVDownmixes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	left := []int{16384, -16384, 8192, 0, 32767}
	right := []int{16384, 16384, -8192, 0, -32768}
	writeStereoWAV(t, path, left, right)

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.Channels() != 2 || src.SampleRate() != 8000 || src.Frames() != 5 {
		t.Fatalf("params = %d ch, %d Hz, %d frames", src.Channels(), src.SampleRate(), src.Frames())
	}

	mono, err := ReadAllMono(src)
	if err != nil {
		t.Fatalf("ReadAllMono: %v", err)
	}
	want := []float32{0.5, 0, 0, 0, -1.0 / 65536}
	if len(mono) != len(want) {
		t.Fatalf("len = %d, want %d", len(mono), len(want))
	}
	for i := range want {
		if math.Abs(float64(mono[i]-want[i])) > 1e-6 {
			t.Fatalf("frame %d = %g, want %g", i, mono[i], want[i])
		}
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	in := []float32{0, 0.25, -0.25, 0.999, -0.999}
	if err := WriteWAV(path, in, 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	rate, ch, frames, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if rate != 16000 || ch != 1 || frames != int64(len(in)) {
		t.Fatalf("Inspect = %d Hz, %d ch, %d frames", rate, ch, frames)
	}

	src, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	out, err := ReadAllMono(src)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-4 {
			t.Fatalf("sample %d = %g, want %g", i, out[i], in[i])
		}
	}
}

func TestToPCM16Saturates(t *testing.T) {
	cases := map[float32]int{
		0:    0,
		1:    32767,
		1.5:  32767,
		-1:   -32767,
		-2:   -32768,
		0.5:  16384,
		-0.5: -16384,
	}
	for in, want := range cases {
		if got := toPCM16(in); got != want {
			t.Errorf("toPCM16(%g) = %d, want %d", in, got, want)
		}
	}
}

func TestOpenRejectsUnknownContainer(t *testing.T) {
	dir := t.TempDir()
	m4a := filepath.Join(dir, "a.m4a")
	if err := os.WriteFile(m4a, []byte("\x00\x00\x00\x20ftypM4A \x00\x00\x00\x00"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(m4a); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("err = %v, want ErrUnsupportedEncoding", err)
	}

	mp3 := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(mp3, []byte("ID3\x03\x00\x00\x00\x00\x00\x00\x00\x00\x00"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(mp3); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("truncated mp3: err = %v, want ErrUnsupportedEncoding", err)
	}

	tiny := filepath.Join(dir, "tiny.wav")
	if err := os.WriteFile(tiny, []byte("RIFF"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(tiny); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("err = %v, want ErrUnsupportedEncoding", err)
	}
}

func TestOpenRejectsBrokenOgg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.ogg")
	if err := os.WriteFile(path, []byte("OggS\x00garbage-that-is-not-vorbis"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for broken ogg")
	}
}

// jaggedSource returns reads that end mid-frame.
type jaggedSource struct {
	data []float32
	pos  int
	step int
}

func (s *jaggedSource) SampleRate() int { return 8000 }
func (s *jaggedSource) Channels() int   { return 3 }
func (s *jaggedSource) Frames() int64   { return int64(len(s.data) / 3) }
func (s *jaggedSource) Close() error    { return nil }

func (s *jaggedSource) Read(dst []float32) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := min(s.step, len(dst), len(s.data)-s.pos)
	copy(dst, s.data[s.pos:s.pos+n])
	s.pos += n
	return n, nil
}

func TestMonoReaderKeepsFrameAlignment(t *testing.T) {
	const frames = 101
	data := make([]float32, 0, frames*3)
	for i := 0; i < frames; i++ {
		v := float32(i) / frames
		data = append(data, v, v, v)
	}

	r := NewMonoReader(&jaggedSource{data: data, step: 7})
	var got []float32
	block := make([]float32, 16)
	for {
		n, err := r.ReadBlock(block)
		got = append(got, block[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadBlock: %v", err)
		}
		if n != len(block) && len(got) != frames {
			t.Fatalf("short block of %d before end of stream", n)
		}
	}

	if len(got) != frames {
		t.Fatalf("frames = %d, want %d", len(got), frames)
	}
	for i, v := range got {
		want := float32(i) / frames
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Fatalf("frame %d = %g, want %g", i, v, want)
		}
	}
}

func TestWAVWriterStreamsBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.wav")
	w, err := CreateWAV(path, 22050)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Write(make([]float32, 1000)); err != nil {
			t.Fatal(err)
		}
	}
	if w.Frames() != 3000 {
		t.Fatalf("frames = %d", w.Frames())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	_, _, frames, err := Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if frames != 3000 {
		t.Fatalf("decoded frames = %d", frames)
	}
}

func le(b *bytes.Buffer, v any) {
	if err := binary.Write(b, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// fmtChunk builds a `fmt ` body. sub is the extensible sub-format GUID and
// is only written when tag is WAVE_FORMAT_EXTENSIBLE.
func fmtChunk(tag uint16, channels, rate, bits int, sub []byte) []byte {
	blockAlign := channels * bits / 8
	var b bytes.Buffer
	le(&b, tag)
	le(&b, uint16(channels))
	le(&b, uint32(rate))
	le(&b, uint32(rate*blockAlign))
	le(&b, uint16(blockAlign))
	le(&b, uint16(bits))
	if tag == wavFormatExtensible {
		le(&b, uint16(22))
		le(&b, uint16(bits))
		le(&b, uint32(0x4))
		b.Write(sub)
	}
	return b.Bytes()
}

func subFormat(code uint16) []byte {
	guid := make([]byte, 16)
	binary.LittleEndian.PutUint16(guid, code)
	copy(guid[4:], ksSubtypeTail)
	return guid
}

func writeRawWAV(t *testing.T, path string, fmtBody, data []byte) {
	t.Helper()
	var b bytes.Buffer
	b.WriteString("RIFF")
	le(&b, uint32(4+8+len(fmtBody)+8+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	le(&b, uint32(len(fmtBody)))
	b.Write(fmtBody)
	b.WriteString("data")
	le(&b, uint32(len(data)))
	b.Write(data)
	if err := os.WriteFile(path, b.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func decodeAll(t *testing.T, path string) (Source, []float32) {
	t.Helper()
	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	mono, err := ReadAllMono(src)
	if err != nil {
		t.Fatalf("ReadAllMono: %v", err)
	}
	return src, mono
}

func assertSamples(t *testing.T, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("sample %d = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestOpenExtensibleWAV24BitPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ext24.wav")
	var data bytes.Buffer
	for _, v := range []int32{4194304, -2097152, 1048576, -8388608} {
		u := uint32(v)
		data.Write([]byte{byte(u), byte(u >> 8), byte(u >> 16)})
	}
	writeRawWAV(t, path, fmtChunk(wavFormatExtensible, 1, 48000, 24, subFormat(wavFormatPCM)), data.Bytes())

	src, mono := decodeAll(t, path)
	if src.SampleRate() != 48000 || src.Channels() != 1 || src.Frames() != 4 {
		t.Fatalf("params = %d Hz, %d ch, %d frames", src.SampleRate(), src.Channels(), src.Frames())
	}
	assertSamples(t, mono, []float32{0.5, -0.25, 0.125, -1}, 1e-7)
}

func TestOpenExtensibleWAVFloat32(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extfloat.wav")
	want := []float32{0.1, -0.1, 0.01, 0.25}
	var data bytes.Buffer
	le(&data, want)
	writeRawWAV(t, path, fmtChunk(wavFormatExtensible, 1, 96000, 32, subFormat(wavFormatFloat)), data.Bytes())

	src, mono := decodeAll(t, path)
	if src.SampleRate() != 96000 || src.Frames() != 4 {
		t.Fatalf("params = %d Hz, %d frames", src.SampleRate(), src.Frames())
	}
	assertSamples(t, mono, want, 0)
}

func TestOpenFloat64StereoWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float64.wav")
	var data bytes.Buffer
	le(&data, []float64{0.5, -0.5, 0.25, 0.25, -1, 0})
	writeRawWAV(t, path, fmtChunk(wavFormatFloat, 2, 16000, 64, nil), data.Bytes())

	src, mono := decodeAll(t, path)
	if src.Channels() != 2 || src.Frames() != 3 {
		t.Fatalf("params = %d ch, %d frames", src.Channels(), src.Frames())
	}
	assertSamples(t, mono, []float32{0, 0.25, -0.5}, 0)
}

func TestOpenRejectsUnknownWAVSubFormat(t *testing.T) {
	bogus := subFormat(wavFormatPCM)
	bogus[15] ^= 0xFF

	tests := []struct {
		name string
		fmt  []byte
	}{
		{name: "adpcm sub-format", fmt: fmtChunk(wavFormatExtensible, 1, 8000, 16, subFormat(0x0002))},
		{name: "foreign guid", fmt: fmtChunk(wavFormatExtensible, 1, 8000, 16, bogus)},
		{name: "mu-law tag", fmt: fmtChunk(0x0007, 1, 8000, 8, nil)},
		{name: "16-bit float", fmt: fmtChunk(wavFormatFloat, 1, 8000, 16, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "x.wav")
			writeRawWAV(t, path, tt.fmt, make([]byte, 64))
			if _, err := Open(path); !errors.Is(err, ErrUnsupportedEncoding) {
				t.Fatalf("err = %v, want ErrUnsupportedEncoding", err)
			}
		})
	}
}

func writeMonoFLAC(t *testing.T, path string, samples []int32, rate int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	const blockSize = 4096
	info := &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(rate),
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(len(samples)),
	}
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		t.Fatal(err)
	}
	for start := 0; start < len(samples); start += blockSize {
		block := samples[start:min(start+blockSize, len(samples))]
		fr := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(len(block)),
				SampleRate:        uint32(rate),
				Channels:          frame.ChannelsMono,
				BitsPerSample:     16,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   block,
				NSamples:  len(block),
			}},
		}
		if err := enc.WriteFrame(fr); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenFLAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speech.flac")
	in := make([]int32, 6000)
	want := make([]float32, len(in))
	for i := range in {
		in[i] = int32(8000 * math.Sin(float64(i)/10))
		want[i] = float32(in[i]) / 32768
	}
	writeMonoFLAC(t, path, in, 16000)

	src, mono := decodeAll(t, path)
	if src.SampleRate() != 16000 || src.Channels() != 1 || src.Frames() != 6000 {
		t.Fatalf("params = %d Hz, %d ch, %d frames", src.SampleRate(), src.Channels(), src.Frames())
	}
	assertSamples(t, mono, want, 1e-7)
}

// silentMP3 writes MPEG-1 Layer III mono frames at 128 kbps and 44.1 kHz
// whose side info and main data are all zero.
func silentMP3(frames int) []byte {
	const frameSize = 144 * 128000 / 44100
	out := make([]byte, 0, frames*frameSize)
	for i := 0; i < frames; i++ {
		fr := make([]byte, frameSize)
		copy(fr, []byte{0xFF, 0xFB, 0x90, 0xC4})
		out = append(out, fr...)
	}
	return out
}

func TestOpenMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.mp3")
	if err := os.WriteFile(path, silentMP3(10), 0o600); err != nil {
		t.Fatal(err)
	}

	src, mono := decodeAll(t, path)
	if src.SampleRate() != 44100 || src.Channels() != 2 {
		t.Fatalf("params = %d Hz, %d ch", src.SampleRate(), src.Channels())
	}
	if len(mono) != 10*1152 {
		t.Fatalf("frames = %d, want %d", len(mono), 10*1152)
	}
	for i, v := range mono {
		if v != 0 {
			t.Fatalf("sample %d = %g, want silence", i, v)
		}
	}
}

func TestWAVWriterCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.wav")
	w, err := CreateWAV(path, 8000)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]float32{0.5, -0.5}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	_, _, frames, err := Inspect(path)
	if err != nil || frames != 2 {
		t.Fatalf("Inspect = %d frames, %v", frames, err)
	}
}
