package stt

// LocalConfig holds configuration for a local whisper.cpp server.
type LocalConfig struct {
	BaseURL string // default: "http://localhost:8178"
	Model   string
}

// NewLocal points the OpenAI-compatible client at a local whisper.cpp server.
// Start the server with: ./server -m models/ggml-base.en.bin --port 8178
func NewLocal(cfg LocalConfig) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8178"
	}
	p := NewOpenAI(OpenAIConfig{BaseURL: baseURL + "/v1", Model: cfg.Model})
	p.name = "local-whisper"
	return p
}
