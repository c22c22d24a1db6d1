package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI Whisper backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
}

// OpenAI transcribes audio using OpenAI's Whisper API or any compatible endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	name   string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		name:   "openai-whisper",
	}
}

func (o *OpenAI) Name() string { return o.name }

// Transcribe uploads the file and asks for a plain-text transcript.
func (o *OpenAI) Transcribe(ctx context.Context, req Request) (*Response, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: req.FilePath,
		Language: req.Language,
		Prompt:   req.Prompt,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &Response{
		Text:     strings.TrimSpace(resp.Text),
		Language: req.Language,
		Duration: resp.Duration,
	}, nil
}

// classify maps go-openai errors onto the package error kinds.
func classify(err error) error {
	status, code, msg := 0, "", err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		msg = apiErr.Message
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	lower := strings.ToLower(msg)
	var kind error
	switch {
	case status == http.StatusTooManyRequests, code == "rate_limit_exceeded", code == "insufficient_quota":
		kind = ErrRateLimited
	case status == http.StatusRequestEntityTooLarge,
		strings.Contains(lower, "maximum content size"),
		strings.Contains(lower, "too large"):
		kind = ErrPayloadTooLarge
	case status == http.StatusBadRequest, status == http.StatusUnsupportedMediaType:
		kind = ErrAudioRejected
	}

	if kind == nil {
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	return fmt.Errorf("%w: %w: %w", ErrSubmissionFailed, kind, err)
}
