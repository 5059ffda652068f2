// Package mail defines the outbound mail contract used by the user records.
package mail

import (
	"context"
	"strings"
)

// Message is one plain-text email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Normalize trims whitespace from the address fields.
func (m Message) Normalize() Message {
	m.To = strings.TrimSpace(m.To)
	m.ToName = strings.TrimSpace(m.ToName)
	m.Subject = strings.TrimSpace(m.Subject)
	return m
}
