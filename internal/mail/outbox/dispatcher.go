package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/louisbranch/objectstore/internal/mail"
	"github.com/louisbranch/objectstore/internal/platform/timeouts"
)

const (
	defaultConsumer      = "userstore-mail"
	defaultBatchSize     = 20
	defaultMaxAttempts   = 5
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

// Queue is the part of Store the Dispatcher drives.
type Queue interface {
	Lease(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]Message, error)
	MarkSent(ctx context.Context, messageID, consumer string, processedAt time.Time) error
	MarkRetry(ctx context.Context, messageID, consumer string, nextAttemptAt time.Time, lastError string) error
	MarkDead(ctx context.Context, messageID, consumer, lastError string, processedAt time.Time) error
}

// Config controls dispatch batching and retry behavior.
type Config struct {
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = timeouts.MailPoll
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = timeouts.MailLease
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = max(defaultRetryMaxDelay, c.RetryBackoff)
	}
	return c
}

// Result counts the outcome of one dispatch pass.
type Result struct {
	Sent    int
	Retried int
	Dead    int
}

// Dispatcher delivers queued messages through a real Sender.
type Dispatcher struct {
	queue    Queue
	delivery mail.Sender
	cfg      Config
	now      func() time.Time
	logf     func(format string, args ...any)
}

// NewDispatcher builds a Dispatcher. Nil now and logf default to time.Now
// and log.Printf.
func NewDispatcher(queue Queue, delivery mail.Sender, cfg Config, now func() time.Time, logf func(string, ...any)) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Dispatcher{
		queue:    queue,
		delivery: delivery,
		cfg:      cfg.normalized(),
		now:      now,
		logf:     logf,
	}
}

// Run dispatches on every poll interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil || d.queue == nil || d.delivery == nil {
		return fmt.Errorf("mail dispatcher is not configured")
	}
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logf("mail dispatch: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce leases one batch of due messages and attempts each.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	var result Result
	if d == nil || d.queue == nil || d.delivery == nil {
		return result, fmt.Errorf("mail dispatcher is not configured")
	}

	leased, err := d.queue.Lease(ctx, d.cfg.Consumer, d.cfg.BatchSize, d.now(), d.cfg.LeaseTTL)
	if err != nil {
		return result, fmt.Errorf("lease mail: %w", err)
	}
	for _, msg := range leased {
		if err := d.deliver(ctx, msg, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message, result *Result) error {
	sendErr := d.delivery.Send(ctx, msg.Mail)
	now := d.now().UTC()

	if sendErr == nil {
		if err := d.queue.MarkSent(ctx, msg.ID, d.cfg.Consumer, now); err != nil {
			return fmt.Errorf("mark mail %s sent: %w", msg.ID, err)
		}
		result.Sent++
		return nil
	}

	attempt := msg.AttemptCount + 1
	var permanent *backoff.PermanentError
	if errors.As(sendErr, &permanent) || attempt >= d.cfg.MaxAttempts {
		if err := d.queue.MarkDead(ctx, msg.ID, d.cfg.Consumer, sendErr.Error(), now); err != nil {
			return fmt.Errorf("mark mail %s dead: %w", msg.ID, err)
		}
		d.logf("mail %s to %s dead after %d attempts: %v", msg.ID, msg.Mail.To, attempt, sendErr)
		result.Dead++
		return nil
	}

	next := now.Add(d.retryDelay(attempt))
	if err := d.queue.MarkRetry(ctx, msg.ID, d.cfg.Consumer, next, sendErr.Error()); err != nil {
		return fmt.Errorf("mark mail %s retry: %w", msg.ID, err)
	}
	result.Retried++
	return nil
}

// retryDelay is the exponential delay before the attempt after the given one.
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     d.cfg.RetryBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         d.cfg.RetryMaxDelay,
	}
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
