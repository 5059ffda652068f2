package storage

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
	platformotel "github.com/louisbranch/objectstore/internal/platform/otel"
	"github.com/louisbranch/objectstore/internal/storage/codec"
)

// Transform rewrites a record file's raw bytes before they are decoded. It is
// the hook point for upgrading documents written by older record versions.
type Transform func(name string, data []byte) ([]byte, error)

type options struct {
	transform Transform
	tracer    trace.Tracer
}

// Option configures Load.
type Option func(*options)

// WithTransform installs a pre-decode hook. The default leaves bytes untouched.
func WithTransform(transform Transform) Option {
	return func(o *options) {
		if transform != nil {
			o.transform = transform
		}
	}
}

// WithTracer overrides the tracer used for store spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func identityTransform(_ string, data []byte) ([]byte, error) {
	return data, nil
}

// Store holds every record of one type found in a directory, in load and
// insertion order.
type Store[T any, R RecordPtr[T]] struct {
	path      string
	records   []R
	removed   bool
	transform Transform
	tracer    trace.Tracer
}

// Load opens the store backed by path, creating the directory when missing.
// Any unreadable or undecodable record file aborts the whole load.
func Load[T any, R RecordPtr[T]](ctx context.Context, path string, opts ...Option) (store *Store[T, R], err error) {
	o := options{
		transform: identityTransform,
		tracer:    platformotel.Tracer(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	_, span := o.tracer.Start(ctx, "storage.Load", trace.WithAttributes(attribute.String("storage.path", path)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(path) == "" {
		return nil, apperrors.New(apperrors.CodePathInvalid, "load store: path is required")
	}

	store = &Store[T, R]{
		path:      path,
		transform: o.transform,
		tracer:    o.tracer,
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, apperrors.WrapWithMetadata(apperrors.CodePathFailed, "create store directory", map[string]string{"path": path}, err)
		}
		return store, nil
	case err != nil:
		return nil, apperrors.WrapWithMetadata(apperrors.CodePathFailed, "stat store directory", map[string]string{"path": path}, err)
	case !info.IsDir():
		return nil, apperrors.WithMetadata(apperrors.CodePathFailed, "store path is not a directory", map[string]string{"path": path})
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodePathFailed, "read store directory", map[string]string{"path": path}, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !isRecordFile(entry) {
			continue
		}
		record, err := store.loadFile(name)
		if err != nil {
			return nil, err
		}
		store.records = append(store.records, record)
	}

	span.SetAttributes(attribute.Int("storage.records", len(store.records)))
	return store, nil
}

func isRecordFile(entry fs.DirEntry) bool {
	if !entry.Type().IsRegular() {
		return false
	}
	name := entry.Name()
	return strings.HasSuffix(name, codec.Ext) && !strings.Contains(name, tempMarker)
}

func (s *Store[T, R]) loadFile(name string) (R, error) {
	meta := map[string]string{"file": name}

	data, err := os.ReadFile(filepath.Join(s.path, name))
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodePathFailed, "read record file", meta, err)
	}
	data, err = s.transform(name, data)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeDecodeFailed, "transform record file", meta, err)
	}

	record := R(new(T))
	if err := codec.DecodeInto(data, record); err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeDecodeFailed, "decode record file", meta, err)
	}
	id := record.ID()
	if id == "" {
		return nil, apperrors.WithMetadata(apperrors.CodeIdentityRequired, "record file has no identity", meta)
	}
	if err := checkIdentity(id); err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeIdentityRequired, "record file identity", meta, err)
	}
	// A record lives in <id>.yml and nowhere else.
	if name != filepath.Base(FilePath(s.path, id)) {
		return nil, apperrors.WithMetadata(apperrors.CodeDecodeFailed, "record identity does not match file name", map[string]string{
			"file": name,
			"id":   id,
		})
	}
	if err := record.SetStoragePath(s.path); err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodePathFailed, "assign storage path", meta, err)
	}
	return record, nil
}

// Path returns the backing directory.
func (s *Store[T, R]) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Len returns the number of records held.
func (s *Store[T, R]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Records returns a copy of the record sequence. The elements are the live
// records held by the store.
func (s *Store[T, R]) Records() []R {
	if s == nil {
		return nil
	}
	return slices.Clone(s.records)
}

// All iterates a snapshot of the records in order.
func (s *Store[T, R]) All() iter.Seq[R] {
	return slices.Values(s.Records())
}

// Insert assigns the store path to record, persists it and appends it.
func (s *Store[T, R]) Insert(ctx context.Context, record R) error {
	_, err := s.insert(ctx, record)
	return err
}

// InsertAndGetReference inserts record and returns the handle now held by the
// store. Mutating it and calling Persist updates the stored record.
func (s *Store[T, R]) InsertAndGetReference(ctx context.Context, record R) (R, error) {
	return s.insert(ctx, record)
}

func (s *Store[T, R]) insert(ctx context.Context, record R) (_ R, err error) {
	if s == nil {
		return nil, apperrors.New(apperrors.CodePathInvalid, "insert record: store is not loaded")
	}
	_, span := s.tracer.Start(ctx, "storage.Insert", trace.WithAttributes(attribute.String("storage.path", s.path)))
	defer func() { endSpan(span, err) }()

	if record == nil {
		return nil, apperrors.New(apperrors.CodeIdentityRequired, "insert record: record is required")
	}
	id := record.ID()
	if id == "" {
		return nil, apperrors.New(apperrors.CodeIdentityRequired, "insert record: identity is required")
	}
	span.SetAttributes(attribute.String("storage.id", id))
	if s.removed {
		return nil, apperrors.WithMetadata(apperrors.CodeStoreRemoved, "insert record: store was removed", map[string]string{"path": s.path})
	}
	if s.indexOf(id) >= 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeDuplicateIdentity, "insert record: identity already stored", map[string]string{"id": id})
	}

	previous := record.StoragePath()
	if err := record.SetStoragePath(s.path); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeWriteFailed, "insert record: assign storage path", err)
	}
	if err := record.Persist(); err != nil {
		_ = record.SetStoragePath(previous)
		if apperrors.CodeOf(err) == apperrors.CodeUnknown {
			err = apperrors.Wrap(apperrors.CodeWriteFailed, "insert record", err)
		}
		return nil, err
	}

	s.records = append(s.records, record)
	return record, nil
}

// Reference returns the live record with the given identity.
func (s *Store[T, R]) Reference(id string) (R, error) {
	if s != nil {
		if i := s.indexOf(id); i >= 0 {
			return s.records[i], nil
		}
	}
	return nil, apperrors.WithMetadata(apperrors.CodeReferenceLookupFailed, "no record with identity", map[string]string{"id": id})
}

func (s *Store[T, R]) indexOf(id string) int {
	return slices.IndexFunc(s.records, func(r R) bool { return r.ID() == id })
}

// RemoveCollection deletes the backing directory and everything in it. It
// reports whether a directory existed. The store is unusable afterwards.
func (s *Store[T, R]) RemoveCollection(ctx context.Context) (existed bool, err error) {
	if s == nil {
		return false, apperrors.New(apperrors.CodePathInvalid, "remove collection: store is not loaded")
	}
	_, span := s.tracer.Start(ctx, "storage.RemoveCollection", trace.WithAttributes(attribute.String("storage.path", s.path)))
	defer func() { endSpan(span, err) }()

	existed, err = removeDir(s.path)
	if err != nil {
		return false, err
	}

	s.removed = true
	s.records = nil
	span.SetAttributes(attribute.Bool("storage.existed", existed))
	return existed, nil
}

// RemoveDir deletes a collection directory without loading it, so a
// directory holding undecodable files can still be cleared. It reports
// whether the directory existed.
func RemoveDir(ctx context.Context, path string) (existed bool, err error) {
	_, span := platformotel.Tracer().Start(ctx, "storage.RemoveDir", trace.WithAttributes(attribute.String("storage.path", path)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(path) == "" {
		return false, apperrors.New(apperrors.CodePathInvalid, "remove collection: path is required")
	}
	return removeDir(path)
}

func removeDir(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, apperrors.WrapWithMetadata(apperrors.CodePathFailed, "stat store directory", map[string]string{"path": path}, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return false, apperrors.WrapWithMetadata(apperrors.CodePathFailed, "remove store directory", map[string]string{"path": path}, err)
	}
	return true, nil
}

// Removed reports whether RemoveCollection has run on this store.
func (s *Store[T, R]) Removed() bool {
	return s != nil && s.removed
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
