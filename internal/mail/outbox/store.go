// Package outbox queues outbound mail in sqlite and drains it with retries.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/objectstore/internal/mail"
	"github.com/louisbranch/objectstore/internal/mail/outbox/migrations"
	"github.com/louisbranch/objectstore/internal/platform/id"
	sqlitemigrate "github.com/louisbranch/objectstore/internal/platform/storage/sqlitemigrate"
)

// Message statuses.
const (
	StatusPending = "pending"
	StatusLeased  = "leased"
	StatusSent    = "sent"
	StatusDead    = "dead"
)

// ErrNotConfigured is returned by a Sender without a store.
var ErrNotConfigured = errors.New("outbox is not configured")

// ErrNotFound indicates a missing message, or one not leased by the caller.
var ErrNotFound = errors.New("outbox message not found")

// Message is one queued email and its delivery bookkeeping.
type Message struct {
	ID             string
	Mail           mail.Message
	Status         string
	AttemptCount   int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt time.Time
	LastError      string
	ProcessedAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store provides SQLite-backed outbox persistence.
type Store struct {
	sqlDB       *sql.DB
	idGenerator func() (string, error)
}

// Open opens the outbox database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, idGenerator: id.NewID}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Enqueue stores msg as pending and due immediately.
func (s *Store) Enqueue(ctx context.Context, msg mail.Message, now time.Time) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Message{}, fmt.Errorf("storage is not configured")
	}
	msg = msg.Normalize()
	if msg.To == "" {
		return Message{}, fmt.Errorf("recipient is required")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	messageID, err := s.idGenerator()
	if err != nil {
		return Message{}, fmt.Errorf("generate message id: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO mail_outbox (
	id, recipient, recipient_name, subject, body,
	status, attempt_count, next_attempt_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
`,
		messageID,
		msg.To,
		msg.ToName,
		msg.Subject,
		msg.Body,
		StatusPending,
		toMillis(now),
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return Message{}, fmt.Errorf("enqueue mail: %w", err)
	}
	return s.Get(ctx, messageID)
}

// Get returns one message by ID.
func (s *Store) Get(ctx context.Context, messageID string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Message{}, fmt.Errorf("storage is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return Message{}, fmt.Errorf("message id is required")
	}

	msg, err := scanMessage(s.sqlDB.QueryRowContext(ctx, selectMessage+"WHERE id = ?", messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get mail: %w", err)
	}
	return msg, nil
}

// Lease claims up to limit due messages for consumer until now+leaseTTL.
// Leased messages whose lease expired are claimable again.
func (s *Store) Lease(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start lease transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT id
FROM mail_outbox
WHERE (status = ? AND next_attempt_at <= ?)
   OR (status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
ORDER BY next_attempt_at ASC, created_at ASC, id ASC
LIMIT ?
`,
		StatusPending, toMillis(now),
		StatusLeased, toMillis(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select lease candidates: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var candidate string
		if err := rows.Scan(&candidate); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan lease candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate lease candidates: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close lease candidates: %w", err)
	}

	leased := make([]Message, 0, len(candidates))
	for _, candidate := range candidates {
		if _, err := tx.ExecContext(ctx, `
UPDATE mail_outbox
SET status = ?, lease_owner = ?, lease_expires_at = ?, updated_at = ?
WHERE id = ?
`,
			StatusLeased,
			consumer,
			toMillis(now.Add(leaseTTL)),
			toMillis(now),
			candidate,
		); err != nil {
			return nil, fmt.Errorf("lease mail %s: %w", candidate, err)
		}
		msg, err := scanMessage(tx.QueryRowContext(ctx, selectMessage+"WHERE id = ?", candidate).Scan)
		if err != nil {
			return nil, fmt.Errorf("scan leased mail %s: %w", candidate, err)
		}
		leased = append(leased, msg)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease transaction: %w", err)
	}
	return leased, nil
}

// MarkSent records a successful delivery of a leased message.
func (s *Store) MarkSent(ctx context.Context, messageID, consumer string, processedAt time.Time) error {
	processedAt = utcOrNow(processedAt)
	return s.updateLeased(ctx, "mark mail sent", messageID, consumer, `
UPDATE mail_outbox
SET status = ?, attempt_count = attempt_count + 1, lease_owner = '', lease_expires_at = NULL,
	last_error = '', processed_at = ?, updated_at = ?
WHERE id = ? AND status = ? AND lease_owner = ?
`, StatusSent, toMillis(processedAt), toMillis(processedAt))
}

// MarkRetry returns a leased message to pending, due at nextAttemptAt.
func (s *Store) MarkRetry(ctx context.Context, messageID, consumer string, nextAttemptAt time.Time, lastError string) error {
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}
	now := time.Now().UTC()
	return s.updateLeased(ctx, "mark mail retry", messageID, consumer, `
UPDATE mail_outbox
SET status = ?, attempt_count = attempt_count + 1, next_attempt_at = ?, lease_owner = '',
	lease_expires_at = NULL, last_error = ?, processed_at = NULL, updated_at = ?
WHERE id = ? AND status = ? AND lease_owner = ?
`, StatusPending, toMillis(nextAttemptAt.UTC()), strings.TrimSpace(lastError), toMillis(now))
}

// MarkDead stops delivery attempts for a leased message.
func (s *Store) MarkDead(ctx context.Context, messageID, consumer, lastError string, processedAt time.Time) error {
	processedAt = utcOrNow(processedAt)
	return s.updateLeased(ctx, "mark mail dead", messageID, consumer, `
UPDATE mail_outbox
SET status = ?, attempt_count = attempt_count + 1, lease_owner = '', lease_expires_at = NULL,
	last_error = ?, processed_at = ?, updated_at = ?
WHERE id = ? AND status = ? AND lease_owner = ?
`, StatusDead, strings.TrimSpace(lastError), toMillis(processedAt), toMillis(processedAt))
}

func (s *Store) updateLeased(ctx context.Context, op, messageID, consumer, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	consumer = strings.TrimSpace(consumer)
	if messageID == "" {
		return fmt.Errorf("message id is required")
	}
	if consumer == "" {
		return fmt.Errorf("consumer is required")
	}

	args = append(args, messageID, StatusLeased, consumer)
	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const selectMessage = `
SELECT
	id,
	recipient,
	recipient_name,
	subject,
	body,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at
FROM mail_outbox
`

type messageScanner func(dest ...any) error

func scanMessage(scan messageScanner) (Message, error) {
	var (
		msg            Message
		nextAttemptAt  int64
		leaseExpiresAt sql.NullInt64
		processedAt    sql.NullInt64
		createdAt      int64
		updatedAt      int64
	)
	if err := scan(
		&msg.ID,
		&msg.Mail.To,
		&msg.Mail.ToName,
		&msg.Mail.Subject,
		&msg.Mail.Body,
		&msg.Status,
		&msg.AttemptCount,
		&nextAttemptAt,
		&msg.LeaseOwner,
		&leaseExpiresAt,
		&msg.LastError,
		&processedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Message{}, err
	}
	msg.NextAttemptAt = fromMillis(nextAttemptAt)
	if leaseExpiresAt.Valid {
		msg.LeaseExpiresAt = fromMillis(leaseExpiresAt.Int64)
	}
	if processedAt.Valid {
		msg.ProcessedAt = fromMillis(processedAt.Int64)
	}
	msg.CreatedAt = fromMillis(createdAt)
	msg.UpdatedAt = fromMillis(updatedAt)
	return msg, nil
}

func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
