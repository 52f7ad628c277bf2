package tokens

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/markstack/tokens/jwt"
	"github.com/markstack/tokens/store"
)

// Builder defines a public type used by the token service APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     store.Store
	identity  IdentitySource
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis configures a Redis-backed refresh-token store built from the
// given client. Takes precedence over the in-memory default; ignored when an
// explicit store is set with [Builder.WithStore].
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore configures an explicit refresh-token store implementation.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithIdentitySource configures the collaborator that re-fetches current
// claims on every refresh. Optional; without one, refreshed tokens carry a
// minimal claim set from the stored record.
func (b *Builder) WithIdentitySource(src IdentitySource) *Builder {
	b.identity = src
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*TokenService, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- JWT CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		Issuer:           cfg.JWT.Issuer,
		Audience:         cfg.JWT.Audience,
		Key:              []byte(cfg.JWT.SecretKey),
		AccessTTL:        cfg.JWT.AccessTTL,
		Leeway:           cfg.JWT.ClockSkew,
		ValidateIssuer:   cfg.JWT.ValidateIssuer,
		ValidateAudience: cfg.JWT.ValidateAudience,
		ValidateLifetime: cfg.JWT.ValidateLifetime,
	})
	if err != nil {
		return nil, err
	}

	// -------- REFRESH STORE --------
	st := b.store
	if st == nil && b.redis != nil {
		st = store.NewRedis(b.redis, cfg.Store.RedisPrefix)
	}
	if st == nil && cfg.Refresh.Enabled {
		st = store.NewMemory()
	}

	service := &TokenService{
		config:     cfg,
		jwtManager: jm,
		store:      st,
		identity:   b.identity,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    NewMetrics(cfg.Metrics),
	}

	b.built = true

	return service, nil
}
