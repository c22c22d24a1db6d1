package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nikhilbhutani/audioprep/internal/media"
)

const stderrTail = 2048

// CommandError is a failed transcoder invocation with its command log.
type CommandError struct {
	Op  string
	Log CommandLog
	Err error
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("ffmpeg %s failed (exit=%d)", e.Op, e.Log.ExitCode)
	if stderr := strings.TrimSpace(e.Log.Stderr); stderr != "" {
		msg += ": " + tail(stderr, stderrTail)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var errEmptyOutput = errors.New("no output produced")

// FFmpeg implements media.Transcoder on top of the ffmpeg CLI.
type FFmpeg struct {
	path   string
	runner Runner
	stat   func(string) (os.FileInfo, error)
	log    *logrus.Entry
}

var _ media.Transcoder = (*FFmpeg)(nil)

// New binds to the binary resolved in caps. It returns nil and false when no
// transcoder was detected; callers must not wrap that nil in media.Transcoder.
func New(caps media.Capabilities, runner Runner, log *logrus.Entry) (*FFmpeg, bool) {
	if !caps.TranscoderAvailable {
		return nil, false
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{path: caps.TranscoderPath, runner: runner, stat: os.Stat, log: log}, true
}

// FromCapabilities returns a media.Transcoder, or a true nil interface when none is installed.
func FromCapabilities(caps media.Capabilities, log *logrus.Entry) media.Transcoder {
	f, ok := New(caps, nil, log)
	if !ok {
		return nil
	}
	return f
}

// Extract drops any video stream and writes mono 16 kHz PCM s16le WAV.
func (f *FFmpeg) Extract(ctx context.Context, in, out string) error {
	return f.run(ctx, "extract", out, extractArgs(in, out))
}

// Compress re-encodes to mono 16 kHz at the given bitrate; the container follows out's extension.
func (f *FFmpeg) Compress(ctx context.Context, in, out string, bitrateKbps int) error {
	return f.run(ctx, "compress", out, compressArgs(in, out, bitrateKbps))
}

func (f *FFmpeg) run(ctx context.Context, op, out string, args []string) error {
	cmdLog := CommandLog{Command: f.path, Args: args}
	f.log.WithFields(logrus.Fields{"op": op, "args": strings.Join(args, " ")}).Debug("running ffmpeg")

	res, err := f.runner.Run(ctx, f.path, args...)
	cmdLog.ExitCode = res.ExitCode
	cmdLog.Stderr = res.Stderr
	if err != nil {
		return &CommandError{Op: op, Log: cmdLog, Err: err}
	}

	info, statErr := f.stat(out)
	if statErr != nil {
		return &CommandError{Op: op, Log: cmdLog, Err: statErr}
	}
	if info.Size() == 0 {
		return &CommandError{Op: op, Log: cmdLog, Err: errEmptyOutput}
	}
	return nil
}

func extractArgs(in, out string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(media.CanonicalSampleRate),
		"-c:a", "pcm_s16le",
		out,
	}
}

func compressArgs(in, out string, bitrateKbps int) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(media.CanonicalSampleRate),
		"-b:a", strconv.Itoa(bitrateKbps) + "k",
		out,
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
