package media

import "errors"

var (
	// ErrUnsupportedFormat has no fallback: the upload cannot be turned into audio.
	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrConversionFailed  = errors.New("media conversion failed")
	ErrMemoryExhausted   = errors.New("audio exceeds in-process memory budget")
	ErrMalformedAudio    = errors.New("malformed audio stream")
	// ErrCleanupFailed is logged by callers, never returned to a client.
	ErrCleanupFailed = errors.New("temporary file cleanup failed")
)
