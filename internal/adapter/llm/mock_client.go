package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient answers every request locally with a canned description.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// CreateChatCompletion returns a response built from the last user message.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}
	content := "[MOCK] A dependable everyday product."
	if lastUserMessage != "" {
		content = fmt.Sprintf("[MOCK] %s. Built to last and ready to ship.", truncate(strings.TrimSpace(lastUserMessage), 80))
	}
	return &ChatCompletionResponse{
		ID:    "mock-chatcmpl",
		Model: req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: &Usage{CompletionTokens: len(content) / 4, TotalTokens: len(content) / 4},
	}, nil
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
