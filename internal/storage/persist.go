package storage

import (
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/louisbranch/objectstore/internal/platform/errors"
	"github.com/louisbranch/objectstore/internal/storage/codec"
)

// tempMarker appears in the names of partially written record files.
const tempMarker = ".tmp-"

// FilePath returns the file a record with the given identity uses inside dir.
func FilePath(dir, id string) string {
	return filepath.Join(dir, id+codec.Ext)
}

// PersistRecord writes record to <StoragePath>/<ID>.yml, replacing any
// previous content. The file is swapped in atomically so a failed write never
// leaves a truncated document behind.
func PersistRecord(record Record) error {
	if record == nil {
		return apperrors.New(apperrors.CodeWriteFailed, "persist record: record is required")
	}
	dir, id := record.StoragePath(), record.ID()
	if dir == "" {
		return apperrors.New(apperrors.CodeWriteFailed, "persist record: storage path is not set")
	}
	if err := checkIdentity(id); err != nil {
		return apperrors.Wrap(apperrors.CodeWriteFailed, "persist record", err)
	}

	data, err := codec.Encode(record)
	if err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeWriteFailed, "persist record", map[string]string{"id": id}, err)
	}
	path := FilePath(dir, id)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeWriteFailed, "persist record", map[string]string{"file": path}, err)
	}
	return nil
}

// ReloadRecord replaces record's state with the content of its file. The
// storage path survives the reload; on failure the record is left untouched.
func ReloadRecord[T any, R RecordPtr[T]](record R) error {
	if record == nil {
		return apperrors.New(apperrors.CodePathFailed, "reload record: record is required")
	}
	dir, id := record.StoragePath(), record.ID()
	if dir == "" || id == "" {
		return apperrors.New(apperrors.CodePathFailed, "reload record: record has no file")
	}

	path := FilePath(dir, id)
	meta := map[string]string{"file": path}
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodePathFailed, "reload record", meta, err)
	}
	fresh, err := codec.Decode[T](data)
	if err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeDecodeFailed, "reload record", meta, err)
	}

	*record = fresh
	return record.SetStoragePath(dir)
}

func checkIdentity(id string) error {
	switch {
	case id == "":
		return apperrors.New(apperrors.CodeIdentityRequired, "identity is required")
	case id == "." || id == "..", strings.ContainsAny(id, `/\`), strings.Contains(id, tempMarker):
		return apperrors.WithMetadata(apperrors.CodeIdentityRequired, "identity is not a valid file name", map[string]string{"id": id})
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
