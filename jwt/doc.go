// Package jwt implements the HS256 access-token codec used by the token
// service.
//
// # Architecture boundaries
//
// This package owns wire encoding, signing, and claim verification. Refresh
// lifecycle, storage, and claim sourcing are handled by the root package and
// the store.
//
// # What this package must NOT do
//
//   - Access the refresh-token store or any I/O.
//   - Read ambient wall-clock time; callers pass now explicitly.
//   - Decide authorization outcomes.
package jwt
