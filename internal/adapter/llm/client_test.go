package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientCreateChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"A bright lamp."},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "sk-test", time.Second)
	resp, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:    "gpt",
		Messages: []ChatMessage{{Role: "user", Content: "describe a lamp"}},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion failed: %v", err)
	}
	if resp.Content() != "A bright lamp." {
		t.Fatalf("unexpected content: %q", resp.Content())
	}
}

func TestClientRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", time.Second).CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", time.Second).CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt"})
	if err == nil || !strings.Contains(err.Error(), "invalid_request_error") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestMockClientEchoesPrompt(t *testing.T) {
	resp, err := NewMockClient().CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Messages: []ChatMessage{{Role: "system", Content: "be brief"}, {Role: "user", Content: "LED strip"}},
	})
	if err != nil {
		t.Fatalf("mock failed: %v", err)
	}
	if !strings.Contains(resp.Content(), "LED strip") {
		t.Fatalf("unexpected mock content: %q", resp.Content())
	}
}

func TestFactoryFallsBackToMock(t *testing.T) {
	t.Setenv(EnvMode, "")
	if _, ok := NewLLMClient("", "", time.Second).(*MockClient); !ok {
		t.Fatalf("expected mock client without base URL")
	}
	if _, ok := NewLLMClient("http://llm", "", time.Second).(*Client); !ok {
		t.Fatalf("expected real client with base URL")
	}
	t.Setenv(EnvMode, ModeMock)
	if _, ok := NewLLMClient("http://llm", "", time.Second).(*MockClient); !ok {
		t.Fatalf("expected mock client in mock mode")
	}
}
