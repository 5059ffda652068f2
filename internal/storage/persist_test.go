package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
)

type unencodable struct {
	note
}

func (u *unencodable) MarshalYAML() (any, error) {
	return nil, errors.New("refusing to encode")
}

func TestPersistRecordOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	rec := &note{Key: "a", Title: "first", path: dir}
	if err := PersistRecord(rec); err != nil {
		t.Fatalf("persist: %v", err)
	}
	rec.Title = "second"
	if err := PersistRecord(rec); err != nil {
		t.Fatalf("persist again: %v", err)
	}

	data, err := os.ReadFile(FilePath(dir, "a"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "key: a\ntitle: second\n" {
		t.Fatalf("file content = %q", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the record file, got %d entries", len(entries))
	}
}

func TestPersistRecordFailures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		record Record
	}{
		{name: "nil record", record: nil},
		{name: "no storage path", record: &note{Key: "a"}},
		{name: "no identity", record: &note{path: dir}},
		{name: "identity with separator", record: &note{Key: "../escape", path: dir}},
		{name: "missing directory", record: &note{Key: "a", path: filepath.Join(dir, "gone")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := PersistRecord(tc.record); !apperrors.HasCode(err, apperrors.CodeWriteFailed) {
				t.Fatalf("expected WRITE_FAILED, got %v", err)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.yml")); err == nil {
		t.Fatal("identity escaped the storage directory")
	}
}

func TestPersistRecordEncodeFailure(t *testing.T) {
	dir := t.TempDir()
	rec := &unencodable{note: note{Key: "a", path: dir}}

	err := PersistRecord(rec)
	if !apperrors.HasCode(err, apperrors.CodeWriteFailed) {
		t.Fatalf("expected WRITE_FAILED, got %v", err)
	}
	if !apperrors.HasCode(err, apperrors.CodeEncodeFailed) {
		t.Fatalf("expected ENCODE_FAILED cause, got %v", err)
	}
	if _, err := os.Stat(FilePath(dir, "a")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected no file after encode failure")
	}
}

func TestReloadRecordRestoresFileState(t *testing.T) {
	dir := t.TempDir()
	rec := &note{Key: "a", Title: "saved", Tags: []string{"t"}, path: dir}
	if err := rec.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	rec.Title = "unsaved"
	rec.Tags = nil
	if err := rec.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if rec.Title != "saved" || len(rec.Tags) != 1 {
		t.Fatalf("reload did not restore state: %+v", rec)
	}
	if rec.StoragePath() != dir {
		t.Fatalf("storage path = %q, want %q", rec.StoragePath(), dir)
	}
}

func TestReloadRecordFailuresLeaveRecordUntouched(t *testing.T) {
	dir := t.TempDir()

	missing := &note{Key: "missing", Title: "memory", path: dir}
	if err := missing.Reload(); !apperrors.HasCode(err, apperrors.CodePathFailed) {
		t.Fatalf("expected PATH_FAILED, got %v", err)
	}
	if missing.Title != "memory" {
		t.Fatalf("record changed on failed reload: %+v", missing)
	}

	writeFile(t, FilePath(dir, "bad"), "key: bad\ntitle: [oops\n")
	bad := &note{Key: "bad", Title: "memory", path: dir}
	if err := bad.Reload(); !apperrors.HasCode(err, apperrors.CodeDecodeFailed) {
		t.Fatalf("expected DECODE_FAILED, got %v", err)
	}
	if bad.Title != "memory" {
		t.Fatalf("record changed on failed reload: %+v", bad)
	}

	unplaced := &note{Key: "a"}
	if err := unplaced.Reload(); !apperrors.HasCode(err, apperrors.CodePathFailed) {
		t.Fatalf("expected PATH_FAILED without storage path, got %v", err)
	}
}

func TestSharedSerialisesAccess(t *testing.T) {
	shared := NewShared(loadNotes(t, t.TempDir()))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- shared.Do(func(s *Store[note, *note]) error {
				return s.Insert(context.Background(), &note{Key: string(rune('a' + i))})
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var count int
	if err := shared.Do(func(s *Store[note, *note]) error {
		count = s.Len()
		return nil
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if count != workers {
		t.Fatalf("expected %d records, got %d", workers, count)
	}
}

func TestSharedReleasesLockAfterPanic(t *testing.T) {
	shared := NewShared(loadNotes(t, t.TempDir()))

	func() {
		defer func() { _ = recover() }()
		_ = shared.Do(func(*Store[note, *note]) error { panic("boom") })
	}()

	err := shared.Do(func(s *Store[note, *note]) error {
		if s.Len() != 0 {
			return errors.New("unexpected records")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do after panic: %v", err)
	}
}

func TestSharedWithoutStore(t *testing.T) {
	var shared *Shared[note, *note]
	err := shared.Do(func(*Store[note, *note]) error { return nil })
	if !apperrors.HasCode(err, apperrors.CodePathInvalid) {
		t.Fatalf("expected PATH_INVALID, got %v", err)
	}
}

func TestFilePath(t *testing.T) {
	got := FilePath("data", "user1")
	if !strings.HasSuffix(got, "user1.yml") || filepath.Dir(got) != "data" {
		t.Fatalf("FilePath() = %q", got)
	}
}
