// Package middleware exposes HTTP middleware adapters that enforce bearer
// access token validation on top of the token service.
//
// # Guards
//
//   - [Guard] validates the Authorization bearer token.
//   - [RequireRoles] validates the token and additionally requires roles.
//
// Each guard reads the Authorization header, calls TokenService.ValidateToken,
// and injects the validation result into the request context for downstream
// handlers via [ValidationResultFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into token service calls. It does NOT
// implement validation logic itself. All decisions are delegated to
// TokenService.ValidateToken.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the token service).
//   - Access the refresh token store (validation is stateless).
//   - Make authorization decisions beyond pass/reject from the validation
//     result and its role claims.
package middleware
