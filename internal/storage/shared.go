package storage

import (
	"sync"

	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
)

// Shared serialises access to one Store behind a single lock. Records handed
// out inside Do must not be used after it returns.
type Shared[T any, R RecordPtr[T]] struct {
	mu    sync.Mutex
	store *Store[T, R]
}

// NewShared wraps store for use from several goroutines.
func NewShared[T any, R RecordPtr[T]](store *Store[T, R]) *Shared[T, R] {
	return &Shared[T, R]{store: store}
}

// Do runs fn with exclusive access to the store and returns its error.
func (s *Shared[T, R]) Do(fn func(*Store[T, R]) error) error {
	if s == nil || s.store == nil {
		return apperrors.New(apperrors.CodePathInvalid, "shared store is not loaded")
	}
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.store)
}
