package tokens

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	service := newTestService(t, refreshTestConfig())
	t0 := time.Now()

	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := service.RefreshToken(context.Background(), issued.RefreshToken, t0.Add(time.Minute))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrRefreshInvalid) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestRefreshConcurrencyReuseMetric(t *testing.T) {
	cfg := refreshTestConfig()
	cfg.Metrics.Enabled = true
	service := newTestService(t, cfg)
	t0 := time.Now()

	issued, err := service.IssueToken(context.Background(), fullTestClaims(), t0)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = service.RefreshToken(context.Background(), issued.RefreshToken, t0.Add(time.Minute))
		}()
	}
	wg.Wait()

	snap := service.MetricsSnapshot()
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("expected one refresh success, got %d", snap.Counters[MetricRefreshSuccess])
	}

	// Every loser either saw the revoked record or lost the CAS.
	blocked := snap.Counters[MetricRefreshReuseBlocked]
	failures := snap.Counters[MetricRefreshFailure]
	if blocked+failures == 0 {
		t.Fatal("expected losing goroutines to be counted")
	}
	if failures != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, failures)
	}
}
