// Package notify defines the notification dispatch contract: payloads
// derived from successful workflow completions and the dispatcher interface
// that delivers them.
//
// Dispatch is best-effort: the engine logs and swallows delivery failures
// so a dead channel never flips a successful workflow to failed.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Channel names used by the built-in workflow definitions.
const (
	ChannelEmail = "email"
	ChannelChat  = "chat"
)

// Payload is one notification to deliver.
type Payload struct {
	// Channel selects the delivery channel (email, chat, ...).
	Channel string `json:"channel"`
	// Recipient is a channel-specific address.
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	// Metadata carries channel-specific extras (template name, locale).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Dispatcher delivers notification payloads.
type Dispatcher interface {
	Send(ctx context.Context, payloads []*Payload) error
}

// DispatcherFunc is an adapter to use a plain function as a Dispatcher.
type DispatcherFunc func(ctx context.Context, payloads []*Payload) error

// Send implements Dispatcher.
func (f DispatcherFunc) Send(ctx context.Context, payloads []*Payload) error {
	return f(ctx, payloads)
}

// ──────────────────────────────────────────────────
// Memory dispatcher
// ──────────────────────────────────────────────────

// Memory captures payloads in memory for tests. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	payloads []*Payload
}

// NewMemory returns an empty capturing dispatcher.
func NewMemory() *Memory { return &Memory{} }

// Send implements Dispatcher.
func (m *Memory) Send(_ context.Context, payloads []*Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payloads...)
	return nil
}

// Payloads returns a copy of everything sent so far.
func (m *Memory) Payloads() []*Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Payload, len(m.payloads))
	copy(out, m.payloads)
	return out
}

// ──────────────────────────────────────────────────
// Log dispatcher
// ──────────────────────────────────────────────────

// Log returns a Dispatcher that writes each payload to a slog logger.
func Log(logger *slog.Logger) Dispatcher {
	return DispatcherFunc(func(_ context.Context, payloads []*Payload) error {
		for _, p := range payloads {
			logger.Info("notification",
				slog.String("channel", p.Channel),
				slog.String("recipient", p.Recipient),
				slog.String("subject", p.Subject),
			)
		}
		return nil
	})
}
