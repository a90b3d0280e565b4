package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
)

func TestRateLimiter_AllowsWithinProductionLimit(t *testing.T) {
	store := newMockStore()
	service := newTestLimiter(t, store, Config{Rule: domain.RateLimitRule{ProductionRequests: 3, LoopbackRequests: 100}})

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := service.Allow(ctx, domain.RateLimitRequest{IP: "192.168.1.1"})
		if err != nil {
			t.Fatalf("unexpected error at attempt %d: %v", i+1, err)
		}
		if !decision.Admitted {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
		if decision.Remaining != 3-(i+1) {
			t.Fatalf("expected remaining=%d, got %d", 3-(i+1), decision.Remaining)
		}
	}
}

func TestRateLimiter_RejectsAfterExceedingProductionLimit(t *testing.T) {
	store := newMockStore()
	service := newTestLimiter(t, store, Config{Rule: domain.RateLimitRule{ProductionRequests: 2, LoopbackRequests: 100}})

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := service.Allow(ctx, domain.RateLimitRequest{IP: "10.0.0.1"}); err != nil {
			t.Fatalf("unexpected error on warmup %d: %v", i+1, err)
		}
	}

	decision, err := service.Allow(ctx, domain.RateLimitRequest{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("rejection must not be an error, got %v", err)
	}
	if decision.Admitted {
		t.Fatalf("expected decision.Admitted=false after exceeding limit")
	}
	if decision.Identifier != "10.0.0.1" {
		t.Fatalf("expected identifier 10.0.0.1, got %q", decision.Identifier)
	}
}

func TestRateLimiter_UsesLoopbackLimitForSentinel(t *testing.T) {
	store := newMockStore()
	service := newTestLimiter(t, store, Config{Rule: domain.RateLimitRule{ProductionRequests: 1, LoopbackRequests: 50}})

	decision, err := service.Allow(context.Background(), domain.RateLimitRequest{IP: domain.LoopbackKey})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Limit != 50 {
		t.Fatalf("expected loopback limit 50, got %d", decision.Limit)
	}
	if store.limits[domain.LoopbackKey] != 50 {
		t.Fatalf("expected store to receive limit 50, got %d", store.limits[domain.LoopbackKey])
	}
}

func TestRateLimiter_EmptyIPFallsBackToLoopback(t *testing.T) {
	store := newMockStore()
	service := newTestLimiter(t, store, Config{Rule: domain.RateLimitRule{ProductionRequests: 1, LoopbackRequests: 50}})

	decision, err := service.Allow(context.Background(), domain.RateLimitRequest{IP: "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Identifier != domain.LoopbackKey {
		t.Fatalf("expected loopback identifier, got %q", decision.Identifier)
	}
}

func TestRateLimiter_StoreErrorFailsClosed(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("store exploded")
	service := newTestLimiter(t, store, Config{Rule: domain.RateLimitRule{ProductionRequests: 10, LoopbackRequests: 100}})

	decision, err := service.Allow(context.Background(), domain.RateLimitRequest{IP: "10.0.0.1"})
	if err == nil {
		t.Fatalf("expected error to be surfaced")
	}
	if decision.Admitted {
		t.Fatalf("expected store failure to reject the request")
	}
}

func TestNewRateLimiterService_ValidatesConfig(t *testing.T) {
	cases := []struct {
		name  string
		store *mockStore
		rule  domain.RateLimitRule
	}{
		{name: "nil store", store: nil, rule: domain.RateLimitRule{ProductionRequests: 1, LoopbackRequests: 1}},
		{name: "zero production", store: newMockStore(), rule: domain.RateLimitRule{ProductionRequests: 0, LoopbackRequests: 1}},
		{name: "negative loopback", store: newMockStore(), rule: domain.RateLimitRule{ProductionRequests: 1, LoopbackRequests: -1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			if tc.store == nil {
				_, err = NewRateLimiterService(nil, Config{Rule: tc.rule})
			} else {
				_, err = NewRateLimiterService(tc.store, Config{Rule: tc.rule})
			}
			if !domain.IsConfigurationError(err) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

// newTestLimiter is a helper that fails the test immediately if creation fails.
func newTestLimiter(t *testing.T, store *mockStore, cfg Config) *RateLimiterService {
	t.Helper()
	service, err := NewRateLimiterService(store, cfg)
	if err != nil {
		t.Fatalf("failed to create rate limiter service: %v", err)
	}
	return service
}

type mockStore struct {
	counts map[domain.ClientKey]int
	limits map[domain.ClientKey]int
	err    error
}

func newMockStore() *mockStore {
	return &mockStore{
		counts: make(map[domain.ClientKey]int),
		limits: make(map[domain.ClientKey]int),
	}
}

func (m *mockStore) Check(limit int, key domain.ClientKey) (domain.Outcome, error) {
	if m.err != nil {
		return domain.Outcome{}, m.err
	}
	m.limits[key] = limit
	m.counts[key]++
	resetAt := time.Now().Add(time.Minute)
	if m.counts[key] > limit {
		return domain.Rejected(limit, resetAt), nil
	}
	return domain.Admitted(limit, limit-m.counts[key], resetAt), nil
}
