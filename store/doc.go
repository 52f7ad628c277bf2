// Package store defines the refresh-token persistence contract and ships
// two implementations: an in-memory reference store and a Redis-backed
// store for multi-instance deployments.
//
// # Record state machine
//
// Active -> Revoked (terminal, explicit) or Active -> Expired (terminal,
// time-derived). No transition leaves Revoked.
//
// # Architecture boundaries
//
// This package owns persistence and the atomic revocation transition. Token
// generation, the rotation protocol, and claim handling belong to the root
// package.
package store
