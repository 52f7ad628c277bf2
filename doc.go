// Package tokens provides a low-latency token service with HMAC-signed JWT
// access tokens, rotating opaque refresh tokens, and pluggable refresh-token
// persistence (in-memory or Redis-backed).
//
// The package is designed for concurrent server workloads: TokenService
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// tokens is the public surface. It exposes [TokenService], [Builder],
// [Config], and value types (IssuedToken, ValidationResult,
// MetricsSnapshot, etc.). The JWT wire codec lives in the jwt sub-package,
// refresh-token persistence in store, and helpers under internal/ are never
// exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, record encodings, or signing internals in its
//     public API beyond the store.Store contract.
//   - Report invalid access tokens as errors. Validation failures are
//     classified results; errors are reserved for infrastructure faults.
//   - Reveal through RefreshToken whether a presented token was unknown,
//     expired, or revoked.
//
// # Performance contract
//
// ValidateToken is the hot path. It is pure CPU work against in-process key
// material and must complete without any store round-trip. IssueToken and
// RefreshToken are allowed the store round-trips their persistence
// requires.
package tokens
