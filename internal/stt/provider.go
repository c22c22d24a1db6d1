package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhilbhutani/audioprep/internal/config"
)

// Request holds the parameters for audio transcription.
type Request struct {
	FilePath string `json:"file_path"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// Response holds the transcription result.
type Response struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Provider is the interface for speech-to-text backends. Errors wrap
// ErrSubmissionFailed and, when known, a more specific kind.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Response, error)
	Name() string
}

var (
	ErrSubmissionFailed = errors.New("transcription submission failed")
	ErrRateLimited      = errors.New("transcription backend rate limited")
	ErrAudioRejected    = errors.New("transcription backend rejected audio")
	ErrPayloadTooLarge  = errors.New("audio exceeds transcription upload limit")
)

// New builds the provider selected by cfg.Backend.
func New(cfg config.STTConfig) (Provider, error) {
	switch cfg.Backend {
	case "", "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	case "local":
		return NewLocal(LocalConfig{BaseURL: cfg.LocalBaseURL, Model: cfg.OpenAIModel}), nil
	default:
		return nil, fmt.Errorf("unknown stt backend %q", cfg.Backend)
	}
}
