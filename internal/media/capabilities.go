package media

import (
	"context"
	"os/exec"
)

// Capabilities is detected once at startup and shared read-only by every request.
type Capabilities struct {
	TranscoderAvailable bool
	TranscoderPath      string
}

// Transcoder is the external media converter. Both operations must leave a
// non-empty file at out on success.
type Transcoder interface {
	Extract(ctx context.Context, in, out string) error
	Compress(ctx context.Context, in, out string, bitrateKbps int) error
}

// DetectCapabilities resolves bin on PATH.
func DetectCapabilities(bin string) Capabilities {
	return detectCapabilities(bin, exec.LookPath)
}

func detectCapabilities(bin string, lookPath func(string) (string, error)) Capabilities {
	if bin == "" {
		return Capabilities{}
	}
	path, err := lookPath(bin)
	if err != nil {
		return Capabilities{}
	}
	return Capabilities{TranscoderAvailable: true, TranscoderPath: path}
}
