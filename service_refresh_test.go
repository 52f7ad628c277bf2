package tokens

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/markstack/tokens/store"
)

type staticIdentity struct {
	claims ClaimSet
	err    error
}

func (s *staticIdentity) ResolveClaims(context.Context, string) (ClaimSet, error) {
	if s.err != nil {
		return ClaimSet{}, s.err
	}
	return s.claims, nil
}

type failingStore struct{}

func (failingStore) Save(context.Context, store.Record) error {
	return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (failingStore) Get(context.Context, string) (*store.Record, error) {
	return nil, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (failingStore) Revoke(context.Context, string, time.Time) (bool, error) {
	return false, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (failingStore) RevokeAllForSubject(context.Context, string, time.Time) (int, error) {
	return 0, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (failingStore) CountActiveForSubject(context.Context, string, time.Time) (int, error) {
	return 0, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (failingStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func refreshTestConfig() Config {
	cfg := serviceTestConfig()
	cfg.JWT.AccessTTL = 60 * time.Second
	cfg.JWT.ClockSkew = 0
	cfg.Refresh.TTL = 3600 * time.Second
	return cfg
}

func TestRefreshRotationScenario(t *testing.T) {
	identity := &staticIdentity{claims: fullTestClaims()}
	service, err := New().
		WithConfig(refreshTestConfig()).
		WithIdentitySource(identity).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer service.Close()

	t0 := time.Now()
	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	// Two minutes later the access token is expired but the refresh token
	// has most of its hour left.
	t1 := t0.Add(2 * time.Minute)
	if result := service.ValidateToken(issued.AccessToken, t1); result.Valid || result.Kind != KindExpired {
		t.Fatalf("expected expired access token at t1, got valid=%v kind=%s", result.Valid, result.Kind)
	}

	renewed, err := service.RefreshToken(context.Background(), issued.RefreshToken, t1)
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if renewed.AccessToken == issued.AccessToken {
		t.Fatal("expected a new access token")
	}
	if renewed.RefreshToken == issued.RefreshToken {
		t.Fatal("expected a rotated refresh token")
	}
	if result := service.ValidateToken(renewed.AccessToken, t1); !result.Valid {
		t.Fatalf("expected renewed access token to validate, got kind=%s", result.Kind)
	}

	// The rotated-away refresh token is dead.
	if _, err := service.RefreshToken(context.Background(), issued.RefreshToken, t1); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for rotated-away token, got %v", err)
	}
}

func TestRefreshFailuresAreIndistinguishable(t *testing.T) {
	service := newTestService(t, refreshTestConfig())
	t0 := time.Now()

	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	revoked, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if err := service.RevokeRefreshToken(context.Background(), revoked.RefreshToken, t0); err != nil {
		t.Fatalf("RevokeRefreshToken failed: %v", err)
	}

	cases := map[string]struct {
		token string
		now   time.Time
	}{
		"unknown token": {token: "never-issued-token-value", now: t0},
		"expired token": {token: issued.RefreshToken, now: t0.Add(2 * time.Hour)},
		"revoked token": {token: revoked.RefreshToken, now: t0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.RefreshToken(context.Background(), tc.token, tc.now)
			if !errors.Is(err, ErrRefreshInvalid) {
				t.Fatalf("expected ErrRefreshInvalid, got %v", err)
			}
			if err.Error() != ErrRefreshInvalid.Error() {
				t.Fatalf("failure reason leaked in error text: %q", err.Error())
			}
		})
	}
}

func TestRefreshRefetchesIdentityClaims(t *testing.T) {
	identity := &staticIdentity{claims: fullTestClaims()}
	service, err := New().
		WithConfig(refreshTestConfig()).
		WithIdentitySource(identity).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer service.Close()

	t0 := time.Now()
	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	// Roles change between issuance and refresh.
	updated := fullTestClaims()
	updated.Roles = []string{"user"}
	identity.claims = updated

	renewed, err := service.RefreshToken(context.Background(), issued.RefreshToken, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if renewed.Claims.HasRole("admin") {
		t.Fatal("expected revoked admin role to disappear after refresh")
	}
	if !renewed.Claims.HasRole("user") {
		t.Fatalf("expected user role after refresh, got %v", renewed.Claims.Roles)
	}
}

func TestRefreshWithoutIdentitySourceUsesRecordClaims(t *testing.T) {
	service := newTestService(t, refreshTestConfig())
	t0 := time.Now()

	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	renewed, err := service.RefreshToken(context.Background(), issued.RefreshToken, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if renewed.Claims.SubjectID != "user-1" {
		t.Fatalf("expected subject user-1, got %q", renewed.Claims.SubjectID)
	}
	if renewed.Claims.ClientID != "web-app" {
		t.Fatalf("expected client web-app, got %q", renewed.Claims.ClientID)
	}
	if len(renewed.Claims.Roles) != 0 {
		t.Fatalf("expected minimal claims without roles, got %v", renewed.Claims.Roles)
	}
}

func TestRefreshIdentityUnavailableFailsClosed(t *testing.T) {
	identity := &staticIdentity{err: errors.New("directory down")}
	service, err := New().
		WithConfig(refreshTestConfig()).
		WithIdentitySource(identity).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer service.Close()

	t0 := time.Now()
	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	_, err = service.RefreshToken(context.Background(), issued.RefreshToken, t0.Add(time.Minute))
	if !errors.Is(err, ErrIdentityUnavailable) {
		t.Fatalf("expected ErrIdentityUnavailable, got %v", err)
	}
}

func TestRefreshStoreUnavailableIsNotInvalidToken(t *testing.T) {
	service, err := New().
		WithConfig(refreshTestConfig()).
		WithStore(failingStore{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer service.Close()

	_, err = service.RefreshToken(context.Background(), "any-token", time.Now())
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected store.ErrUnavailable, got %v", err)
	}
	if errors.Is(err, ErrRefreshInvalid) {
		t.Fatal("store outage must not be reported as an invalid token")
	}
}

func TestRefreshDisabled(t *testing.T) {
	cfg := refreshTestConfig()
	cfg.Refresh.Enabled = false
	service := newTestService(t, cfg)
	t0 := time.Now()

	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if issued.RefreshToken != "" {
		t.Fatal("expected no refresh token when refresh is disabled")
	}

	if _, err := service.RefreshToken(context.Background(), "anything", t0); !errors.Is(err, ErrRefreshDisabled) {
		t.Fatalf("expected ErrRefreshDisabled, got %v", err)
	}
}

func TestRefreshWithoutRotationReusesToken(t *testing.T) {
	cfg := refreshTestConfig()
	cfg.Refresh.RotateOnUse = false
	service := newTestService(t, cfg)
	t0 := time.Now()

	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := service.RefreshToken(context.Background(), issued.RefreshToken, t0.Add(time.Duration(i+1)*time.Minute)); err != nil {
			t.Fatalf("refresh %d failed without rotation: %v", i, err)
		}
	}
}

func TestRevokeRefreshTokenIdempotent(t *testing.T) {
	service := newTestService(t, refreshTestConfig())
	t0 := time.Now()

	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if err := service.RevokeRefreshToken(context.Background(), issued.RefreshToken, t0); err != nil {
		t.Fatalf("first revoke failed: %v", err)
	}
	if err := service.RevokeRefreshToken(context.Background(), issued.RefreshToken, t0); err != nil {
		t.Fatalf("second revoke not idempotent: %v", err)
	}
	if err := service.RevokeRefreshToken(context.Background(), "never-issued", t0); err != nil {
		t.Fatalf("revoking unknown token should succeed, got %v", err)
	}

	if _, err := service.RefreshToken(context.Background(), issued.RefreshToken, t0); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after revoke, got %v", err)
	}
}

func TestRevokeAllForSubject(t *testing.T) {
	service := newTestService(t, refreshTestConfig())
	t0 := time.Now()

	var aliceTokens []string
	for i := 0; i < 3; i++ {
		issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		aliceTokens = append(aliceTokens, issued.RefreshToken)
	}

	bobClaims := fullTestClaims()
	bobClaims.SubjectID = "user-2"
	bob, err := service.IssueToken(context.Background(), bobClaims, t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	revoked, err := service.RevokeAllForSubject(context.Background(), "user-1", t0)
	if err != nil {
		t.Fatalf("RevokeAllForSubject failed: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked tokens, got %d", revoked)
	}

	for _, token := range aliceTokens {
		if _, err := service.RefreshToken(context.Background(), token, t0); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("expected alice token to be dead, got %v", err)
		}
	}

	if _, err := service.RefreshToken(context.Background(), bob.RefreshToken, t0); err != nil {
		t.Fatalf("expected bob's token to survive, got %v", err)
	}

	active, err := service.ActiveRefreshTokens(context.Background(), "user-1", t0)
	if err != nil {
		t.Fatalf("ActiveRefreshTokens failed: %v", err)
	}
	if active != 0 {
		t.Fatalf("expected 0 active tokens for user-1, got %d", active)
	}
}

func TestActiveRefreshTokensCount(t *testing.T) {
	service := newTestService(t, refreshTestConfig())
	t0 := time.Now()

	for i := 0; i < 4; i++ {
		if _, err := service.IssueToken(context.Background(), fullTestClaims(), t0); err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
	}

	active, err := service.ActiveRefreshTokens(context.Background(), "user-1", t0)
	if err != nil {
		t.Fatalf("ActiveRefreshTokens failed: %v", err)
	}
	if active != 4 {
		t.Fatalf("expected 4 active tokens, got %d", active)
	}

	// All of them age out.
	active, err = service.ActiveRefreshTokens(context.Background(), "user-1", t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ActiveRefreshTokens failed: %v", err)
	}
	if active != 0 {
		t.Fatalf("expected 0 active tokens after expiry, got %d", active)
	}
}

func TestSweepExpiredTokens(t *testing.T) {
	cfg := refreshTestConfig()
	cfg.Metrics.Enabled = true
	service := newTestService(t, cfg)
	t0 := time.Now()

	for i := 0; i < 3; i++ {
		if _, err := service.IssueToken(context.Background(), fullTestClaims(), t0); err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
	}

	removed, err := service.SweepExpiredTokens(context.Background(), t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("SweepExpiredTokens failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 swept records, got %d", removed)
	}

	snap := service.MetricsSnapshot()
	if snap.Counters[MetricTokensSwept] != 3 {
		t.Fatalf("expected swept counter 3, got %d", snap.Counters[MetricTokensSwept])
	}

	// Nothing left to sweep.
	removed, err = service.SweepExpiredTokens(context.Background(), t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected empty sweep, got %d", removed)
	}
}
