package tokens

import (
	"errors"
	"time"
)

// Config defines a public type used by the token service APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT     JWTConfig
	Refresh RefreshConfig
	Store   StoreConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds access-token signing and verification settings.
//
// SecretKey must decode to at least 32 UTF-8 bytes; shorter keys make HS256
// signatures forgeable in practice and are rejected at Build time.
type JWTConfig struct {
	Issuer    string
	Audience  string
	SecretKey string
	AccessTTL time.Duration
	ClockSkew time.Duration

	// Each verification check is independently toggleable. All default to
	// true; disabling issuer or audience checks supports multi-issuer
	// transition periods, disabling lifetime checks is for diagnostics only.
	ValidateIssuer   bool
	ValidateAudience bool
	ValidateLifetime bool
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig holds refresh-token lifecycle settings.
//
// RefreshConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshConfig struct {
	Enabled     bool
	TTL         time.Duration
	RotateOnUse bool
	// TokenLength is the opaque refresh-token length in characters over an
	// alphanumeric alphabet. Minimum 32.
	TokenLength int
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig holds settings for the Redis-backed refresh-token store.
//
// StoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StoreConfig struct {
	RedisPrefix string
}

// AuditConfig defines a public type used by the token service APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by the token service APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	minSecretKeyBytes      = 32
	minRefreshTokenLength  = 32
	maxClockSkew           = 5 * time.Minute
	defaultRefreshTokenLen = 48
)

// DefaultConfig returns the baseline configuration: 15 minute access
// tokens, 7 day rotating refresh tokens, 30 seconds of clock skew, and all
// verification checks enabled. The signing secret, issuer, and audience
// must still be set by the caller.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:        15 * time.Minute,
			ClockSkew:        30 * time.Second,
			ValidateIssuer:   true,
			ValidateAudience: true,
			ValidateLifetime: true,
		},
		Refresh: RefreshConfig{
			Enabled:     true,
			TTL:         7 * 24 * time.Hour,
			RotateOnUse: true,
			TokenLength: defaultRefreshTokenLen,
		},
		Store: StoreConfig{
			RedisPrefix: "mkt",
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All sections are value types; a shallow copy is a deep copy.
	return cfg
}

// Validate checks the configuration invariants that must hold before any
// token is issued. A missing or weak signing secret is fatal here because an
// insecure key would silently produce forgeable tokens.
func (c Config) Validate() error {
	if len([]byte(c.JWT.SecretKey)) < minSecretKeyBytes {
		return errors.New("signing secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("access token lifetime must be positive")
	}
	if c.JWT.ClockSkew < 0 || c.JWT.ClockSkew > maxClockSkew {
		return errors.New("clock skew must be between 0 and 5 minutes")
	}
	if c.Refresh.Enabled {
		if c.Refresh.TTL <= 0 {
			return errors.New("refresh token lifetime must be positive when refresh is enabled")
		}
		if c.Refresh.TTL <= c.JWT.AccessTTL {
			return errors.New("refresh token lifetime must exceed access token lifetime")
		}
		if c.Refresh.TokenLength != 0 && c.Refresh.TokenLength < minRefreshTokenLength {
			return errors.New("refresh token length must be at least 32")
		}
	}
	return nil
}

func (c Config) refreshTokenLength() int {
	if c.Refresh.TokenLength <= 0 {
		return defaultRefreshTokenLen
	}
	return c.Refresh.TokenLength
}
