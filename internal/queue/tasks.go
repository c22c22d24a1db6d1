package queue

import "github.com/nikhilbhutani/audioprep/internal/transcription"

const (
	TypeAudioTranscribe = "audio:transcribe"

	QueueDefault = "default"

	EventTranscriptionCompleted = "transcription.completed"
	EventTranscriptionFailed    = "transcription.failed"
)

// TranscribePayload carries the upload itself; the worker never reads from
// the API host's filesystem.
type TranscribePayload struct {
	RequestID    string `json:"request_id,omitempty"`
	Filename     string `json:"filename"`
	Data         []byte `json:"data"`
	RemoveNoise  bool   `json:"remove_noise"`
	ForceEnglish bool   `json:"force_english"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

func (p TranscribePayload) Options() transcription.Options {
	return transcription.Options{RemoveNoise: p.RemoveNoise, ForceEnglish: p.ForceEnglish}
}

// JobResult is stored as the task result and sent to the callback URL.
type JobResult struct {
	JobID         string                       `json:"job_id,omitempty"`
	RequestID     string                       `json:"request_id,omitempty"`
	RunID         string                       `json:"run_id,omitempty"`
	Transcription string                       `json:"transcription,omitempty"`
	Optimizations *transcription.Optimizations `json:"optimizations,omitempty"`
	Error         string                       `json:"error,omitempty"`
}
