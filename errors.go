package tokens

import "errors"

var (
	// ErrServiceNotReady is an exported constant or variable used by the token service.
	ErrServiceNotReady = errors.New("token service not initialized")
	// ErrRefreshDisabled is an exported constant or variable used by the token service.
	ErrRefreshDisabled = errors.New("refresh tokens disabled")
	// ErrRefreshInvalid deliberately collapses "not found", "expired", and
	// "revoked" into a single outcome so callers cannot probe which applied.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrTokenMalformed is an exported constant or variable used by the token service.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrIdentityUnavailable is an exported constant or variable used by the token service.
	ErrIdentityUnavailable = errors.New("identity source unavailable")
)
