package domain

import (
	"encoding/json"
	"time"
)

// Envelope is the message delivered to the external agent.
type Envelope struct {
	CorrelationID string          `json:"correlation_id"`
	Type          CommandType     `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	IssuedAt      time.Time       `json:"issued_at"`
	Source        string          `json:"source"`
	ChannelID     string          `json:"channel_id,omitempty"`
	// ReplyTo is set only when the backend waits for a callback.
	ReplyTo string `json:"reply_to,omitempty"`
}

// CallbackRequest is posted by the external agent to resolve a command.
type CallbackRequest struct {
	CorrelationID string          `json:"correlation_id"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// CallbackResponse acknowledges a callback whether or not it matched.
type CallbackResponse struct {
	Received bool `json:"received"`
}

// Outcome carries a value obtained through the agent bridge together with
// whether the agent confirmed it. A pending outcome holds a placeholder built
// from the request inputs only; it never carries agent-assigned identifiers.
type Outcome[T any] struct {
	Value T         `json:"value"`
	State SyncState `json:"state"`
}

// Confirmed wraps a value the agent returned.
func Confirmed[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, State: SyncStateConfirmed}
}

// Pending wraps a placeholder synthesized after a missing or malformed reply.
func Pending[T any](placeholder T) Outcome[T] {
	return Outcome[T]{Value: placeholder, State: SyncStatePending}
}

// IsPending reports whether the outcome is a placeholder.
func (o Outcome[T]) IsPending() bool {
	return o.State != SyncStateConfirmed
}

// Get returns the value and whether it was confirmed.
func (o Outcome[T]) Get() (T, bool) {
	return o.Value, o.State == SyncStateConfirmed
}
