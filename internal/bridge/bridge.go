// Package bridge turns the one-way outbound channel to the external agent
// into request/response calls. Replies arrive later on the callback endpoint
// and are matched to their caller by correlation id.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// DefaultTimeout bounds how long Send waits for a callback.
const DefaultTimeout = 60 * time.Second

// Dispatch outcomes reported to the Recorder.
const (
	OutcomeDelivered      = "delivered"
	OutcomeDeliveryFailed = "delivery_failed"
	OutcomeResolved       = "resolved"
	OutcomeTimeout        = "timeout"
	OutcomeCancelled      = "cancelled"
	OutcomeDisabled       = "disabled"
)

// Transport delivers one envelope to the external agent.
type Transport interface {
	Deliver(ctx context.Context, env domain.Envelope) error
	// Enabled reports whether an endpoint is configured at all.
	Enabled() bool
}

// Recorder receives dispatch telemetry. *metrics.Metrics implements it.
type Recorder interface {
	ObserveDispatch(cmdType, outcome string)
	SetPending(n int)
}

// Reply is the agent's answer to one command.
type Reply struct {
	CorrelationID string
	Result        json.RawMessage
	Error         string
}

// Options configures a Bridge.
type Options struct {
	Timeout     time.Duration
	Source      string
	ChannelID   string
	CallbackURL string
	Logger      *slog.Logger
	Recorder    Recorder
}

// Bridge dispatches commands and resolves their callbacks. Each Bridge owns
// its own correlation table.
type Bridge struct {
	transport   Transport
	table       *table
	timeout     time.Duration
	source      string
	channelID   string
	callbackURL string
	logger      *slog.Logger
	recorder    Recorder
	now         func() time.Time
}

// New creates a bridge over transport.
func New(transport Transport, opts Options) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Source == "" {
		opts.Source = "pipeline"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bridge{
		transport:   transport,
		table:       newTable(),
		timeout:     opts.Timeout,
		source:      opts.Source,
		channelID:   opts.ChannelID,
		callbackURL: opts.CallbackURL,
		logger:      opts.Logger.With("component", "bridge"),
		recorder:    opts.Recorder,
		now:         time.Now,
	}
}

// Enabled reports whether commands can leave the process.
func (b *Bridge) Enabled() bool {
	return b.transport != nil && b.transport.Enabled()
}

// Timeout returns the callback wait applied to every awaited command.
func (b *Bridge) Timeout() time.Duration {
	return b.timeout
}

// Send delivers one command. With awaitReply false it returns nil, nil once
// the delivery attempt is over and only logs a delivery failure. With
// awaitReply true it blocks until the callback arrives, the timeout elapses
// or ctx is done. A timeout, a failed delivery or a disabled bridge all
// yield a nil reply and a nil error.
func (b *Bridge) Send(ctx context.Context, cmdType domain.CommandType, payload any, awaitReply bool) (*Reply, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", cmdType, err)
	}

	env := domain.Envelope{
		CorrelationID: uuid.NewString(),
		Type:          cmdType,
		Payload:       raw,
		IssuedAt:      b.now().UTC(),
		Source:        b.source,
		ChannelID:     b.channelID,
	}
	log := b.logger.With("type", string(cmdType), "correlation_id", env.CorrelationID)

	if !b.Enabled() {
		log.Debug("agent bridge disabled, command dropped")
		b.observe(cmdType, OutcomeDisabled)
		return nil, nil
	}

	if !awaitReply {
		if err := b.transport.Deliver(ctx, env); err != nil {
			log.Warn("command delivery failed", "error", err)
			b.observe(cmdType, OutcomeDeliveryFailed)
			return nil, nil
		}
		b.observe(cmdType, OutcomeDelivered)
		return nil, nil
	}

	env.ReplyTo = b.callbackURL
	// Registered before delivery so a fast callback always finds its waiter.
	w := b.table.add(PendingTask{
		CorrelationID: env.CorrelationID,
		Type:          cmdType,
		IssuedAt:      env.IssuedAt,
		Deadline:      env.IssuedAt.Add(b.timeout),
	})
	b.setPending()

	if err := b.transport.Deliver(ctx, env); err != nil {
		if _, ok := b.table.take(env.CorrelationID); ok {
			b.setPending()
			log.Warn("command delivery failed", "error", err)
			b.observe(cmdType, OutcomeDeliveryFailed)
			return nil, nil
		}
		// The agent answered even though the delivery call reported an error.
		reply := <-w.reply
		return &reply, nil
	}
	b.observe(cmdType, OutcomeDelivered)

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case reply := <-w.reply:
		return &reply, nil
	case <-timer.C:
		if _, ok := b.table.take(env.CorrelationID); ok {
			b.setPending()
			log.Warn("no callback before timeout", "timeout", b.timeout)
			b.observe(cmdType, OutcomeTimeout)
			return nil, nil
		}
		reply := <-w.reply
		return &reply, nil
	case <-ctx.Done():
		if _, ok := b.table.take(env.CorrelationID); ok {
			b.setPending()
			b.observe(cmdType, OutcomeCancelled)
			return nil, ctx.Err()
		}
		reply := <-w.reply
		return &reply, nil
	}
}

// Resolve hands a callback to its waiting caller. It reports false, and does
// nothing, when the id is unknown, already resolved or expired.
func (b *Bridge) Resolve(correlationID string, result json.RawMessage, errMsg string) bool {
	w, ok := b.table.take(correlationID)
	if !ok {
		b.logger.Debug("callback for unknown task ignored", "correlation_id", correlationID)
		return false
	}
	b.setPending()
	w.reply <- Reply{CorrelationID: correlationID, Result: result, Error: errMsg}
	b.observe(w.task.Type, OutcomeResolved)
	return true
}

// Ping delivers a connectivity check and reports the delivery error, if any.
func (b *Bridge) Ping(ctx context.Context) error {
	if !b.Enabled() {
		return fmt.Errorf("agent bridge is not configured")
	}
	return b.transport.Deliver(ctx, domain.Envelope{
		CorrelationID: uuid.NewString(),
		Type:          domain.CommandPing,
		Payload:       json.RawMessage(`{}`),
		IssuedAt:      b.now().UTC(),
		Source:        b.source,
		ChannelID:     b.channelID,
	})
}

// Pending returns the number of commands waiting for a callback.
func (b *Bridge) Pending() int {
	return b.table.len()
}

// PendingTasks lists waiting commands, oldest first.
func (b *Bridge) PendingTasks() []PendingTask {
	return b.table.snapshot()
}

func (b *Bridge) observe(cmdType domain.CommandType, outcome string) {
	if b.recorder != nil {
		b.recorder.ObserveDispatch(string(cmdType), outcome)
	}
}

func (b *Bridge) setPending() {
	if b.recorder != nil {
		b.recorder.SetPending(b.table.len())
	}
}
