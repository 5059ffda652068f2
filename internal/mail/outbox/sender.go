package outbox

import (
	"context"
	"time"

	"github.com/louisbranch/objectstore/internal/mail"
)

// Sender implements mail.Sender by queueing messages for a Dispatcher.
type Sender struct {
	store *Store
	now   func() time.Time
}

// NewSender returns a Sender that enqueues into store.
func NewSender(store *Store, now func() time.Time) *Sender {
	if now == nil {
		now = time.Now
	}
	return &Sender{store: store, now: now}
}

// Send enqueues msg. Delivery happens later, with retries.
func (s *Sender) Send(ctx context.Context, msg mail.Message) error {
	if s == nil {
		return ErrNotConfigured
	}
	_, err := s.store.Enqueue(ctx, msg, s.now())
	return err
}
