package storage

// Record is implemented by every type a Store can hold.
type Record interface {
	// ID returns the record identity, or "" when none has been assigned.
	ID() string
	// StoragePath returns the directory the record belongs to, or "" before
	// the record has been inserted or loaded.
	StoragePath() string
	SetStoragePath(path string) error
	// Persist writes the record's current state to its file.
	Persist() error
	// Reload replaces the record's in-memory state with its file's content.
	Reload() error
}

// RecordPtr constrains R to a pointer to T that implements Record, so a Store
// can allocate fresh records while loading.
type RecordPtr[T any] interface {
	*T
	Record
}
