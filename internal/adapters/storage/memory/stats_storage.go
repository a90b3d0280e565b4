package memory

import (
	"context"
	"sync"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
	"github.com/jwinr/TechNexus-sub000/internal/core/ports"
)

type Counters struct {
	Admitted    int64 `json:"admitted"`
	RateLimited int64 `json:"rate_limited"`
	Forbidden   int64 `json:"forbidden"`
	Errors      int64 `json:"errors"`
}

func (c *Counters) add(v domain.Verdict) {
	switch v {
	case domain.VerdictAdmitted:
		c.Admitted++
	case domain.VerdictRateLimited:
		c.RateLimited++
	case domain.VerdictForbidden:
		c.Forbidden++
	default:
		c.Errors++
	}
}

// StatsStorage agrega eventos de admissão em memória.
//
// Não faz expiração; a cardinalidade por rota depende das rotas registradas
// no router, não dos clientes.
type StatsStorage struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
}

var _ ports.StatsRecorder = (*StatsStorage)(nil)

func NewStatsStorage() *StatsStorage {
	return &StatsStorage{byRoute: make(map[string]Counters)}
}

func (s *StatsStorage) Record(_ context.Context, ev domain.AdmissionEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Verdict)
	c := s.byRoute[route]
	c.add(ev.Verdict)
	s.byRoute[route] = c
	return nil
}

func (s *StatsStorage) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *StatsStorage) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}
