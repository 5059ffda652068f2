// Package storage keeps typed collections of records in a directory, one YAML
// document per record.
//
// A Store is loaded from a directory, hands out live references to the
// records it holds and writes a record back to disk whenever it is inserted or
// persisted. Records decide their own identity and validation; the store only
// needs the Record contract.
//
// # Errors
//
// Every failure is an *errors.Error from internal/platform/errors:
//   - PATH_INVALID / PATH_FAILED: the backing directory is blank or unusable.
//   - DECODE_FAILED: a record file could not be parsed, or its identity does
//     not match its <id>.yml name. The file name is in the error metadata.
//   - WRITE_FAILED: a record could not be written. Encoding failures are the
//     wrapped cause and also match ENCODE_FAILED.
//   - REFERENCE_LOOKUP_FAILED: no record carries the requested identity.
//   - IDENTITY_REQUIRED, DUPLICATE_IDENTITY, STORE_REMOVED: the insert was
//     rejected before anything touched disk. A loaded file with an empty or
//     path-like identity also fails with IDENTITY_REQUIRED.
//
// A Store is not safe for concurrent use. Wrap it in a Shared to serialise
// access from several goroutines.
package storage
