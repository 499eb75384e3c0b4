// Package notify delivers human-readable messages to configured recipients.
// The real implementation publishes over MQTT; a recording fake for tests
// lives in fake.go.
package notify

import "context"

// Notifier delivers a text message to a single recipient. Callers invoke it
// once per recipient; one recipient's failure must not block the others.
type Notifier interface {
	Send(ctx context.Context, recipient, message string) error
	Close() error
}

// Disabled is a Notifier that drops everything. Used when no broker is
// configured.
type Disabled struct{}

// Send drops the message.
func (Disabled) Send(ctx context.Context, recipient, message string) error { return nil }

// Close is a no-op.
func (Disabled) Close() error { return nil }
