// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
)

type RateLimiter interface {
	Allow(ctx context.Context, req domain.RateLimitRequest) (domain.Decision, error)
}

type APIKeyGuard interface {
	Protects(path string) bool
	Authorize(path, presented string) error
}
