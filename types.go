package tokens

import (
	"context"
	"time"
)

// IssuedToken is returned by [TokenService.IssueToken] and
// [TokenService.RefreshToken]. It contains the signed access token, the
// opaque refresh token when refresh is enabled and the claim set carried a
// subject, the token lifetime in seconds, the unique token identifier used
// to correlate access and refresh tokens, and the echoed claims.
type IssuedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenID      string
	Claims       ClaimSet
}

// ErrorKind classifies an access-token validation failure. Expected
// failures (expired, bad signature, issuer mismatch) are normal outcomes of
// operation and are reported through [ValidationResult], never as errors.
type ErrorKind uint8

const (
	// KindNone is an exported constant or variable used by the token service.
	KindNone ErrorKind = iota
	// KindMalformed marks input that is not a structurally well-formed token.
	KindMalformed
	// KindSignature marks a well-formed token whose signature does not verify.
	KindSignature
	// KindExpired is an exported constant or variable used by the token service.
	KindExpired
	// KindNotYetValid is an exported constant or variable used by the token service.
	KindNotYetValid
	// KindIssuerMismatch is an exported constant or variable used by the token service.
	KindIssuerMismatch
	// KindAudienceMismatch is an exported constant or variable used by the token service.
	KindAudienceMismatch
)

// String describes the error kind for logs and user-facing mapping.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMalformed:
		return "malformed"
	case KindSignature:
		return "signature"
	case KindExpired:
		return "expired"
	case KindNotYetValid:
		return "not_yet_valid"
	case KindIssuerMismatch:
		return "issuer_mismatch"
	case KindAudienceMismatch:
		return "audience_mismatch"
	default:
		return "unknown"
	}
}

// ValidationResult is the outcome of [TokenService.ValidateToken].
//
// On success Valid is true and Claims, timestamps, TokenID, Issuer, and
// Audience are populated from the verified token. On failure Kind and
// Message describe the failure without leaking cryptographic detail.
type ValidationResult struct {
	Valid   bool
	Kind    ErrorKind
	Message string

	Claims    ClaimSet
	TokenID   string
	Issuer    string
	Audience  string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
}

// IdentitySource supplies current claims for a subject. It is an external
// collaborator: when configured, [TokenService.RefreshToken] re-fetches
// fresh claims on every refresh so that role or account changes take effect
// at the next rotation. Without one, refreshed tokens carry a minimal claim
// set seeded from the stored record.
type IdentitySource interface {
	ResolveClaims(ctx context.Context, subjectID string) (ClaimSet, error)
}

// IdentitySourceFunc adapts a function to the [IdentitySource] interface.
type IdentitySourceFunc func(ctx context.Context, subjectID string) (ClaimSet, error)

// ResolveClaims calls the wrapped function.
func (f IdentitySourceFunc) ResolveClaims(ctx context.Context, subjectID string) (ClaimSet, error) {
	return f(ctx, subjectID)
}
