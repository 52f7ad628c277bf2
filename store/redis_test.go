package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return NewRedis(rdb, "mkt"), mr
}

func TestRedisSaveGetRoundTrip(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	rec := Record{
		Token:     "tok-1",
		SubjectID: "user-1",
		TokenID:   "jti-1",
		ClientID:  "web-app",
		IP:        "203.0.113.9",
		UserAgent: "curl/8",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SubjectID != "user-1" || got.TokenID != "jti-1" || got.ClientID != "web-app" {
		t.Fatalf("record fields not preserved: %+v", got)
	}
	if got.IP != "203.0.113.9" || got.UserAgent != "curl/8" {
		t.Fatalf("request metadata not preserved: %+v", got)
	}
	if got.CreatedAt.Unix() != now.Unix() || got.ExpiresAt.Unix() != now.Add(time.Hour).Unix() {
		t.Fatalf("timestamps not preserved: %+v", got)
	}
	if got.Revoked {
		t.Fatal("fresh record must not be revoked")
	}
}

func TestRedisGetUnknownToken(t *testing.T) {
	s, _ := newTestRedisStore(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisRevokeCASTransition(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := Record{
		Token:     "tok-1",
		SubjectID: "user-1",
		TokenID:   "jti-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	changed, err := s.Revoke(ctx, "tok-1", now)
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if !changed {
		t.Fatal("expected first revoke to win the CAS")
	}

	changed, err = s.Revoke(ctx, "tok-1", now)
	if err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
	if changed {
		t.Fatal("expected second revoke to lose the CAS")
	}

	got, err := s.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Revoked || got.RevokedAt.IsZero() {
		t.Fatalf("expected revoked record with timestamp, got %+v", got)
	}
}

func TestRedisRevokeUnknownAndExpired(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	changed, err := s.Revoke(ctx, "missing", now)
	if err != nil || changed {
		t.Fatalf("expected no-op for unknown token, got changed=%v err=%v", changed, err)
	}

	rec := Record{
		Token:     "tok-old",
		SubjectID: "user-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Logical expiry has passed even though the key still exists.
	changed, err = s.Revoke(ctx, "tok-old", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if changed {
		t.Fatal("revoking a logically expired record is not an Active transition")
	}
}

func TestRedisRevokeAllForSubject(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, token := range []string{"a1", "a2", "a3"} {
		rec := Record{
			Token:     token,
			SubjectID: "user-1",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	other := Record{
		Token:     "b1",
		SubjectID: "user-2",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.Save(ctx, other); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := s.Revoke(ctx, "a1", now); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	revoked, err := s.RevokeAllForSubject(ctx, "user-1", now)
	if err != nil {
		t.Fatalf("RevokeAllForSubject failed: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("expected 2 transitions, got %d", revoked)
	}

	got, err := s.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Revoked {
		t.Fatal("revoke-all must not touch other subjects")
	}

	active, err := s.CountActiveForSubject(ctx, "user-1", now)
	if err != nil {
		t.Fatalf("CountActiveForSubject failed: %v", err)
	}
	if active != 0 {
		t.Fatalf("expected 0 active records, got %d", active)
	}
}

func TestRedisCountActiveForSubject(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	live := Record{Token: "live", SubjectID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	revoked := Record{Token: "revoked", SubjectID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	for _, rec := range []Record{live, revoked} {
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if _, err := s.Revoke(ctx, "revoked", now); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	active, err := s.CountActiveForSubject(ctx, "user-1", now)
	if err != nil {
		t.Fatalf("CountActiveForSubject failed: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected 1 active record, got %d", active)
	}

	if count, err := s.CountActiveForSubject(ctx, "nobody", now); err != nil || count != 0 {
		t.Fatalf("expected 0 for unknown subject, got count=%d err=%v", count, err)
	}
}

func TestRedisTTLExpiryRemovesRecord(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := Record{
		Token:     "tok-1",
		SubjectID: "user-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := s.Get(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected record to be TTL-expired, got %v", err)
	}
}

func TestRedisSweepPrunesStaleIndexEntries(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	short := Record{Token: "short", SubjectID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	long := Record{Token: "long", SubjectID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	for _, rec := range []Record{short, long} {
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	mr.FastForward(2 * time.Minute)

	removed, err := s.SweepExpired(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned index entry, got %d", removed)
	}

	active, err := s.CountActiveForSubject(ctx, "user-1", now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("CountActiveForSubject failed: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected 1 surviving record, got %d", active)
	}
}

func TestRedisPing(t *testing.T) {
	s, mr := newTestRedisStore(t)

	if _, err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if _, err := s.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after shutdown, got %v", err)
	}
}

func TestRedisUnavailableWrapsErrors(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.Close()

	ctx := context.Background()
	now := time.Now()

	if err := s.Save(ctx, Record{Token: "t", SubjectID: "u", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Save, got %v", err)
	}
	if _, err := s.Get(ctx, "t"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Get, got %v", err)
	}
	if _, err := s.Revoke(ctx, "t", now); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Revoke, got %v", err)
	}
}
