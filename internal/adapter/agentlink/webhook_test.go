package agentlink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

func fixedEnvelope() domain.Envelope {
	return domain.Envelope{
		CorrelationID: "7d1f3c2a-0b5e-4c55-9a60-2f1f8a1e9b10",
		Type:          domain.CommandCreateListing,
		Payload:       json.RawMessage(`{"title":"Sunset Lamp","price_aud":49.95,"status":"draft"}`),
		IssuedAt:      time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Source:        "pipeline",
		ChannelID:     "ops-channel",
		ReplyTo:       "https://backend.example.com/v1/agent/callback",
	}
}

func TestWebhookDeliverEnvelope(t *testing.T) {
	var gotBody []byte
	var gotKey, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(APIKeyHeader)
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, "secret", time.Second)
	require.True(t, hook.Enabled())
	if err := hook.Deliver(context.Background(), fixedEnvelope()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "application/json", gotType)

	// Re-encode with sorted keys so the golden file is stable.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	canonical, err := json.MarshalIndent(decoded, "", "  ")
	require.NoError(t, err)
	canonical = append(canonical, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "webhook_envelope", canonical)
}

func TestWebhookOmitsReplyToForFireAndForget(t *testing.T) {
	var decoded map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&decoded)
	}))
	defer srv.Close()

	env := fixedEnvelope()
	env.ReplyTo = ""
	env.Type = domain.CommandAlertLowStock
	require.NoError(t, NewWebhook(srv.URL, "", time.Second).Deliver(context.Background(), env))

	_, present := decoded["reply_to"]
	assert.False(t, present)
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "k", time.Second).Deliver(context.Background(), fixedEnvelope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	err := NewWebhook(srv.URL, "k", 50*time.Millisecond).Deliver(context.Background(), fixedEnvelope())
	assert.Error(t, err)
}

func TestWebhookDisabledWithoutURL(t *testing.T) {
	assert.False(t, NewWebhook("  ", "k", 0).Enabled())
}
