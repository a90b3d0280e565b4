package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
	"github.com/jwinr/TechNexus-sub000/internal/core/ports"
)

// Config agrega os limites utilizados pelo serviço de rate limiting.
type Config struct {
	Rule domain.RateLimitRule
}

// RateLimiterService escolhe o limite efetivo de cada cliente e consulta o store.
type RateLimiterService struct {
	store  ports.CounterStore
	config Config
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

// NewRateLimiterService cria uma nova instância do serviço.
func NewRateLimiterService(store ports.CounterStore, cfg Config) (*RateLimiterService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: counter store is required", domain.ErrInvalidConfig)
	}
	if cfg.Rule.ProductionRequests <= 0 {
		return nil, fmt.Errorf("%w: production limit must be > 0, got %d", domain.ErrInvalidConfig, cfg.Rule.ProductionRequests)
	}
	if cfg.Rule.LoopbackRequests <= 0 {
		return nil, fmt.Errorf("%w: loopback limit must be > 0, got %d", domain.ErrInvalidConfig, cfg.Rule.LoopbackRequests)
	}

	return &RateLimiterService{store: store, config: cfg}, nil
}

// Allow avalia se a requisição pode prosseguir. Qualquer erro do store resulta
// em uma decisão de rejeição junto com o erro, nunca em admissão.
func (s *RateLimiterService) Allow(_ context.Context, req domain.RateLimitRequest) (domain.Decision, error) {
	key := domain.ClientKey(strings.TrimSpace(string(req.IP)))
	if key == "" {
		key = domain.LoopbackKey
	}
	limit := s.LimitFor(key)

	outcome, err := s.store.Check(limit, key)
	if err != nil {
		return domain.Decision{Outcome: domain.Rejected(limit, outcome.ResetAt), Identifier: key}, fmt.Errorf("check %s: %w", key, err)
	}

	return domain.Decision{Outcome: outcome, Identifier: key}, nil
}

// LimitFor retorna o teto aplicado à chave: o de desenvolvimento para o
// loopback, o de produção para os demais.
func (s *RateLimiterService) LimitFor(key domain.ClientKey) int {
	if key.IsLoopback() {
		return s.config.Rule.LoopbackRequests
	}
	return s.config.Rule.ProductionRequests
}
