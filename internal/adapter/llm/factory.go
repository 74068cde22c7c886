package llm

import (
	"log/slog"
	"os"
	"time"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "PIPELINE_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewLLMClient returns a MockClient when PIPELINE_MODE=MOCK or no base URL
// is configured, and a real Client otherwise.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration) LLMClient {
	if os.Getenv(EnvMode) == ModeMock || baseURL == "" {
		slog.Info("using mock LLM client", "mode", os.Getenv(EnvMode))
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
