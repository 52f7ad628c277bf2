package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config defines a public type used by the token codec.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Issuer    string
	Audience  string
	Key       []byte
	AccessTTL time.Duration
	Leeway    time.Duration

	ValidateIssuer   bool
	ValidateAudience bool
	ValidateLifetime bool
}

// Claims is the wire-level claim layout of an access token. Every field set
// at signing time is recoverable after verification, including the custom
// claim map.
type Claims struct {
	Username      string            `json:"preferred_username,omitempty"`
	DisplayName   string            `json:"name,omitempty"`
	Email         string            `json:"email,omitempty"`
	EmailVerified bool              `json:"email_verified,omitempty"`
	Phone         string            `json:"phone_number,omitempty"`
	PhoneVerified bool              `json:"phone_number_verified,omitempty"`
	TenantID      string            `json:"tenant_id,omitempty"`
	EditionID     string            `json:"edition_id,omitempty"`
	ClientID      string            `json:"client_id,omitempty"`
	SessionID     string            `json:"sid,omitempty"`
	Roles         []string          `json:"roles,omitempty"`
	Custom        map[string]string `json:"custom,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HMAC-SHA256 access tokens. Signing and
// verification are pure CPU-bound operations; the key is read-only shared
// state and safe for unsynchronized concurrent reads.
type Manager struct {
	config Config
}

// NewManager validates the codec configuration and derives nothing lazily:
// the signing key is held as-is and reused for every call.
//
// NewManager may return an error when input validation fails.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Key) == 0 {
		return nil, errors.New("hs256 requires signing key")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 5*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// Sign produces a compact signed token. Registered timestamp claims are
// derived from the explicit now parameter: iat = nbf = now,
// exp = now + AccessTTL. The caller supplies subject and jti on claims.
func (m *Manager) Sign(claims Claims, now time.Time) (string, error) {
	claims.Issuer = m.config.Issuer
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.config.AccessTTL))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Key)
}

// Parse verifies signature and enabled claim checks against the explicit
// now parameter and returns the recovered claims. Failures are reported via
// the jwt/v5 sentinel errors (ErrTokenExpired, ErrTokenSignatureInvalid,
// ErrTokenInvalidIssuer, ...) so callers can classify them.
func (m *Manager) Parse(tokenStr string, now time.Time) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.ValidateLifetime {
		if m.config.ValidateIssuer && m.config.Issuer != "" {
			options = append(options, jwt.WithIssuer(m.config.Issuer))
		}
		if m.config.ValidateAudience && m.config.Audience != "" {
			options = append(options, jwt.WithAudience(m.config.Audience))
		}
	} else {
		// Signature is still verified; exp/nbf/iss/aud move to the manual
		// checks below so each stays independently toggleable.
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if !m.config.ValidateLifetime {
		if m.config.ValidateIssuer && m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
			return nil, jwt.ErrTokenInvalidIssuer
		}
		if m.config.ValidateAudience && m.config.Audience != "" && !containsAudience(claims.Audience, m.config.Audience) {
			return nil, jwt.ErrTokenInvalidAudience
		}
	}

	return claims, nil
}

// ParseUnverified decodes the claims with no signature or expiry check.
// Unsafe for authorization decisions; diagnostics only.
func (m *Manager) ParseUnverified(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenStr, &Claims{})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
