package tokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/markstack/tokens/internal"
	"github.com/markstack/tokens/jwt"
	"github.com/markstack/tokens/store"
)

// TokenService issues, validates, refreshes, and revokes tokens. Construct
// it through [Builder.Build]; the zero value is not usable.
//
// All methods are safe for concurrent use. The service holds no per-call
// state: the signing key, configuration, and collaborators are fixed at
// build time.
type TokenService struct {
	config     Config
	jwtManager *jwt.Manager
	store      store.Store
	identity   IdentitySource
	audit      *auditDispatcher
	metrics    *Metrics
}

// IssueToken signs an access token for the given claim set and, when
// refresh is enabled and the claims carry a subject, generates and persists
// an opaque refresh token alongside it.
//
// Issuance is fail-closed: if the refresh record cannot be persisted, no
// token pair is returned at all. A signed access token paired with an
// unpersisted refresh token would break revocation guarantees.
//
// now is the issuance instant; registered claims derive from it.
func (s *TokenService) IssueToken(ctx context.Context, claims ClaimSet, now time.Time) (*IssuedToken, error) {
	if s == nil || s.jwtManager == nil {
		return nil, ErrServiceNotReady
	}

	echoed := cloneClaimSet(claims)
	tokenID := uuid.NewString()

	accessToken, err := s.jwtManager.Sign(wireClaims(echoed, tokenID), now)
	if err != nil {
		s.metrics.Inc(MetricIssueFailure)
		s.emitAudit(ctx, auditEventIssueFailure, false, claims.SubjectID, claims.TenantID, tokenID, err, nil)
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	issued := &IssuedToken{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.config.JWT.AccessTTL / time.Second),
		TokenID:     tokenID,
		Claims:      echoed,
	}

	if s.config.Refresh.Enabled && claims.HasSubject() && s.store != nil {
		opaque, err := internal.NewOpaqueToken(s.config.refreshTokenLength())
		if err != nil {
			s.metrics.Inc(MetricIssueFailure)
			s.emitAudit(ctx, auditEventIssueFailure, false, claims.SubjectID, claims.TenantID, tokenID, err, nil)
			return nil, fmt.Errorf("generate refresh token: %w", err)
		}

		rec := store.Record{
			Token:     opaque,
			SubjectID: claims.SubjectID,
			TokenID:   tokenID,
			ClientID:  claims.ClientID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.config.Refresh.TTL),
		}
		if err := s.store.Save(ctx, rec); err != nil {
			s.metrics.Inc(MetricIssueFailure)
			s.emitAudit(ctx, auditEventIssueFailure, false, claims.SubjectID, claims.TenantID, tokenID, err, nil)
			return nil, fmt.Errorf("persist refresh token: %w", err)
		}

		issued.RefreshToken = opaque
	}

	s.metrics.Inc(MetricIssueSuccess)
	s.emitAudit(ctx, auditEventIssueSuccess, true, claims.SubjectID, claims.TenantID, tokenID, nil, func() map[string]string {
		return map[string]string{
			"refresh_issued": strconv.FormatBool(issued.RefreshToken != ""),
		}
	})

	return issued, nil
}

// ValidateToken verifies an access token against the configured key and the
// enabled claim checks, evaluated at the explicit now instant.
//
// Invalid tokens are a normal outcome of operation, not an error condition:
// the result carries an [ErrorKind] classification and a message that never
// leaks cryptographic detail.
func (s *TokenService) ValidateToken(tokenStr string, now time.Time) ValidationResult {
	if s == nil || s.jwtManager == nil {
		return ValidationResult{
			Kind:    KindMalformed,
			Message: "token service not initialized",
		}
	}

	if s.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			s.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := s.jwtManager.Parse(tokenStr, now)
	if err != nil {
		kind := classifyKind(err)
		s.metrics.Inc(MetricValidateFailure)
		return ValidationResult{
			Kind:    kind,
			Message: kindMessage(kind),
		}
	}

	result := ValidationResult{
		Valid:   true,
		Claims:  claimSetFromWire(claims),
		TokenID: claims.ID,
		Issuer:  claims.Issuer,
	}
	if len(claims.Audience) > 0 {
		result.Audience = claims.Audience[0]
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.NotBefore != nil {
		result.NotBefore = claims.NotBefore.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	s.metrics.Inc(MetricValidateSuccess)
	return result
}

// RefreshToken exchanges a valid refresh token for a new token pair.
//
// With rotation enabled the presented token is atomically revoked before
// the new pair is issued; the atomic transition guarantees exactly one
// winner under concurrent presentation of the same token, and every loser
// receives [ErrRefreshInvalid].
//
// Not-found, expired, and revoked tokens all fail with [ErrRefreshInvalid]
// so the API cannot be used as an oracle over the store contents. Store
// unavailability is reported as its own error and never mistaken for an
// invalid token.
func (s *TokenService) RefreshToken(ctx context.Context, refreshToken string, now time.Time) (*IssuedToken, error) {
	if s == nil || s.jwtManager == nil {
		return nil, ErrServiceNotReady
	}
	if !s.config.Refresh.Enabled || s.store == nil {
		return nil, ErrRefreshDisabled
	}

	rec, err := s.store.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Inc(MetricRefreshFailure)
			s.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
		s.metrics.Inc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", err, nil)
		return nil, err
	}

	if !rec.IsValid(now) {
		s.metrics.Inc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, rec.SubjectID, "", rec.TokenID, ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	if s.config.Refresh.RotateOnUse {
		changed, err := s.store.Revoke(ctx, refreshToken, now)
		if err != nil {
			s.metrics.Inc(MetricRefreshFailure)
			s.emitAudit(ctx, auditEventRefreshInvalid, false, rec.SubjectID, "", rec.TokenID, err, nil)
			return nil, err
		}
		if !changed {
			// Lost the race to another presentation of the same token, or a
			// revocation landed in between. Treat as reuse.
			s.metrics.Inc(MetricRefreshReuseBlocked)
			s.metrics.Inc(MetricRefreshFailure)
			s.emitAudit(ctx, auditEventRefreshReuseBlocked, false, rec.SubjectID, "", rec.TokenID, ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
	}

	var claims ClaimSet
	if s.identity != nil {
		claims, err = s.identity.ResolveClaims(ctx, rec.SubjectID)
		if err != nil {
			// Fail closed. The old token is already revoked under rotation;
			// issuing from stale claims here would let a disabled account
			// keep minting tokens.
			s.metrics.Inc(MetricRefreshFailure)
			wrapped := fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
			s.emitAudit(ctx, auditEventRefreshInvalid, false, rec.SubjectID, "", rec.TokenID, wrapped, nil)
			return nil, wrapped
		}
	} else {
		claims = ClaimSet{
			SubjectID: rec.SubjectID,
			ClientID:  rec.ClientID,
		}
	}

	issued, err := s.IssueToken(ctx, claims, now)
	if err != nil {
		s.metrics.Inc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, rec.SubjectID, claims.TenantID, rec.TokenID, err, nil)
		return nil, err
	}

	s.metrics.Inc(MetricRefreshSuccess)
	s.emitAudit(ctx, auditEventRefreshSuccess, true, rec.SubjectID, claims.TenantID, issued.TokenID, nil, func() map[string]string {
		return map[string]string{
			"previous_token_id": rec.TokenID,
			"rotated":           strconv.FormatBool(s.config.Refresh.RotateOnUse),
		}
	})

	return issued, nil
}

// RevokeRefreshToken revokes a single refresh token. The operation is
// idempotent: revoking an already-revoked or unknown token succeeds without
// effect.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshToken string, now time.Time) error {
	if s == nil {
		return ErrServiceNotReady
	}
	if s.store == nil {
		return ErrRefreshDisabled
	}

	changed, err := s.store.Revoke(ctx, refreshToken, now)
	if err != nil {
		s.emitAudit(ctx, auditEventRevokeToken, false, "", "", "", err, nil)
		return err
	}

	if changed {
		s.metrics.Inc(MetricRevoke)
	}
	s.emitAudit(ctx, auditEventRevokeToken, true, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"transitioned": strconv.FormatBool(changed),
		}
	})

	return nil
}

// RevokeAllForSubject revokes every active refresh token owned by the
// subject, with a single shared revocation timestamp. Returns the number of
// tokens transitioned to revoked.
func (s *TokenService) RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int, error) {
	if s == nil {
		return 0, ErrServiceNotReady
	}
	if s.store == nil {
		return 0, ErrRefreshDisabled
	}

	revoked, err := s.store.RevokeAllForSubject(ctx, subjectID, now)
	if err != nil {
		s.emitAudit(ctx, auditEventRevokeAll, false, subjectID, "", "", err, nil)
		return 0, err
	}

	s.metrics.Inc(MetricRevokeAll)
	s.emitAudit(ctx, auditEventRevokeAll, true, subjectID, "", "", nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.Itoa(revoked),
		}
	})

	return revoked, nil
}

// ActiveRefreshTokens returns how many refresh tokens the subject currently
// holds that are neither revoked nor expired.
func (s *TokenService) ActiveRefreshTokens(ctx context.Context, subjectID string, now time.Time) (int, error) {
	if s == nil {
		return 0, ErrServiceNotReady
	}
	if s.store == nil {
		return 0, ErrRefreshDisabled
	}
	return s.store.CountActiveForSubject(ctx, subjectID, now)
}

// SweepExpiredTokens removes expired refresh-token records from the store.
// Sweeping is advisory housekeeping: validity never depends on it, so a
// failed or skipped sweep affects storage footprint only.
func (s *TokenService) SweepExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	if s == nil {
		return 0, ErrServiceNotReady
	}
	if s.store == nil {
		return 0, ErrRefreshDisabled
	}

	removed, err := s.store.SweepExpired(ctx, now)
	if err != nil {
		s.emitAudit(ctx, auditEventSweep, false, "", "", "", err, nil)
		return removed, err
	}

	s.metrics.Add(MetricTokensSwept, uint64(removed))
	s.emitAudit(ctx, auditEventSweep, true, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"removed_count": strconv.Itoa(removed),
		}
	})

	return removed, nil
}

// ExtractClaimsWithoutValidation decodes the claims of a structurally
// well-formed token with no signature or lifetime verification. Returns nil
// when the input cannot be decoded.
//
// The output is unverified and must never drive authorization decisions;
// it exists for logging and debugging.
func (s *TokenService) ExtractClaimsWithoutValidation(tokenStr string) *ClaimSet {
	if s == nil || s.jwtManager == nil {
		return nil
	}

	claims, err := s.jwtManager.ParseUnverified(tokenStr)
	if err != nil {
		return nil
	}

	cs := claimSetFromWire(claims)
	return &cs
}

// MetricsSnapshot returns a point-in-time copy of the service metrics.
func (s *TokenService) MetricsSnapshot() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

// Metrics exposes the underlying metrics instance for exporters.
func (s *TokenService) Metrics() *Metrics {
	if s == nil {
		return nil
	}
	return s.metrics
}

// AuditDropped returns how many audit events have been dropped due to a
// full buffer since the service started.
func (s *TokenService) AuditDropped() uint64 {
	if s == nil || s.audit == nil {
		return 0
	}
	return s.audit.Dropped()
}

// Close flushes and stops the audit dispatcher. The service must not be
// used after Close.
func (s *TokenService) Close() {
	if s == nil {
		return
	}
	s.audit.Close()
}

func wireClaims(c ClaimSet, tokenID string) jwt.Claims {
	return jwt.Claims{
		Username:      c.Username,
		DisplayName:   c.DisplayName,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Phone:         c.Phone,
		PhoneVerified: c.PhoneVerified,
		TenantID:      c.TenantID,
		EditionID:     c.EditionID,
		ClientID:      c.ClientID,
		SessionID:     c.SessionID,
		Roles:         c.Roles,
		Custom:        c.Custom,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject: c.SubjectID,
			ID:      tokenID,
		},
	}
}

func claimSetFromWire(c *jwt.Claims) ClaimSet {
	return cloneClaimSet(ClaimSet{
		SubjectID:     c.Subject,
		Username:      c.Username,
		DisplayName:   c.DisplayName,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Phone:         c.Phone,
		PhoneVerified: c.PhoneVerified,
		TenantID:      c.TenantID,
		EditionID:     c.EditionID,
		ClientID:      c.ClientID,
		SessionID:     c.SessionID,
		Roles:         c.Roles,
		Custom:        c.Custom,
	})
}

func classifyKind(err error) ErrorKind {
	switch {
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return KindMalformed
	case errors.Is(err, jwtlib.ErrTokenSignatureInvalid),
		errors.Is(err, jwtlib.ErrTokenUnverifiable):
		return KindSignature
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return KindExpired
	case errors.Is(err, jwtlib.ErrTokenNotValidYet),
		errors.Is(err, jwtlib.ErrTokenUsedBeforeIssued):
		return KindNotYetValid
	case errors.Is(err, jwtlib.ErrTokenInvalidIssuer):
		return KindIssuerMismatch
	case errors.Is(err, jwtlib.ErrTokenInvalidAudience):
		return KindAudienceMismatch
	default:
		return KindMalformed
	}
}

func kindMessage(kind ErrorKind) string {
	switch kind {
	case KindMalformed:
		return "token is malformed"
	case KindSignature:
		return "token signature verification failed"
	case KindExpired:
		return "token has expired"
	case KindNotYetValid:
		return "token is not valid yet"
	case KindIssuerMismatch:
		return "token issuer mismatch"
	case KindAudienceMismatch:
		return "token audience mismatch"
	default:
		return "token is invalid"
	}
}
