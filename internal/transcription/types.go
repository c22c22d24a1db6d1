package transcription

import (
	"time"

	"github.com/nikhilbhutani/audioprep/internal/denoise"
	"github.com/nikhilbhutani/audioprep/internal/media"
)

// Options are the caller's requested optimisations.
type Options struct {
	RemoveNoise  bool `json:"remove_noise"`
	ForceEnglish bool `json:"force_english"`
}

func DefaultOptions() Options {
	return Options{RemoveNoise: true, ForceEnglish: true}
}

// Optimizations reports what was actually applied to the submitted audio.
type Optimizations struct {
	NoiseRemoval  bool `json:"noise_removal"`
	ForcedEnglish bool `json:"forced_english"`
}

type Outcome struct {
	Transcription string        `json:"transcription"`
	Optimizations Optimizations `json:"optimizations"`
	Report        Report        `json:"-"`
}

type State string

const (
	StateStart                    State = "start"
	StateNormalized               State = "normalized"
	StateFiltered                 State = "filtered"
	StateSizeChecked              State = "size_checked"
	StateSubmitted                State = "submitted"
	StateRetryWithoutNoiseRemoval State = "retry_without_noise_removal"
	StateFailed                   State = "failed"
)

// Report is the per-run record used for logs, metrics and the audit table.
type Report struct {
	RunID          string
	Filename       string
	UploadBytes    int64
	Classification media.Classification
	Converted      bool
	Strategy       denoise.Strategy
	Gated          bool
	GatingSkipped  bool
	Recompressed   bool
	Retried        bool
	States         []State
	Duration       time.Duration
	Err            error
}

// Final is the last recorded state.
func (r Report) Final() State {
	if len(r.States) == 0 {
		return StateStart
	}
	return r.States[len(r.States)-1]
}
