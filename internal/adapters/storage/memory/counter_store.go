// Package memory disponibiliza implementações em memória dos storages.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
	"github.com/jwinr/TechNexus-sub000/internal/core/ports"
)

const defaultShards = 16

type counterEntry struct {
	count     int
	expiresAt time.Time
	// lastUsed vem de CounterStore.ticks e ordena o uso entre shards.
	lastUsed uint64
}

type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[domain.ClientKey, *counterEntry]
}

// CounterStore é um contador de janela fixa por chave, limitado em memória.
//
// As chaves são distribuídas em shards (xxhash) e cada shard mantém um LRU
// próprio protegido por mutex. O limite de capacidade é global: só há
// despejo quando uma inserção leva o total acima da capacidade, e a entrada
// despejada é a usada há mais tempo entre todos os shards. A janela começa na
// criação da entrada e não é estendida pelos incrementos seguintes.
type CounterStore struct {
	shards       []*shard
	capacity     int
	window       time.Duration
	now          func() time.Time
	cleanupEvery time.Duration

	total     atomic.Int64
	ticks     atomic.Uint64
	evictMu   sync.Mutex
	evictions atomic.Int64
}

var _ ports.CounterStore = (*CounterStore)(nil)

type counterStoreOptions struct {
	shards       int
	now          func() time.Time
	cleanupEvery time.Duration
}

type CounterStoreOption func(*counterStoreOptions)

// WithShards define em quantos shards as chaves são distribuídas.
// Valores acima da capacidade são reduzidos para a capacidade.
func WithShards(n int) CounterStoreOption {
	return func(o *counterStoreOptions) { o.shards = n }
}

func WithClock(now func() time.Time) CounterStoreOption {
	return func(o *counterStoreOptions) { o.now = now }
}

// WithCleanupEvery define o intervalo do janitor. Zero desativa a limpeza periódica.
func WithCleanupEvery(d time.Duration) CounterStoreOption {
	return func(o *counterStoreOptions) { o.cleanupEvery = d }
}

func NewCounterStore(capacity int, window time.Duration, opts ...CounterStoreOption) (*CounterStore, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0, got %d", domain.ErrInvalidConfig, capacity)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be > 0, got %s", domain.ErrInvalidConfig, window)
	}

	o := counterStoreOptions{
		shards:       defaultShards,
		now:          time.Now,
		cleanupEvery: window,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shards <= 0 {
		return nil, fmt.Errorf("%w: shards must be > 0, got %d", domain.ErrInvalidConfig, o.shards)
	}
	if o.shards > capacity {
		o.shards = capacity
	}
	if o.now == nil {
		o.now = time.Now
	}

	s := &CounterStore{
		shards:       make([]*shard, o.shards),
		capacity:     capacity,
		window:       window,
		now:          o.now,
		cleanupEvery: o.cleanupEvery,
	}

	// Cada shard comporta a capacidade inteira; o limite é aplicado por total.
	for i := range s.shards {
		lru, err := simplelru.NewLRU[domain.ClientKey, *counterEntry](capacity, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		s.shards[i] = &shard{lru: lru}
	}

	return s, nil
}

func (s *CounterStore) Capacity() int { return s.capacity }
func (s *CounterStore) Window() time.Duration { return s.window }
func (s *CounterStore) Shards() int { return len(s.shards) }
func (s *CounterStore) Evictions() int64 { return s.evictions.Load() }
func (s *CounterStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Check incrementa o contador de key e compara o novo valor com limit.
// Incremento, comparação e escrita acontecem sob o lock do shard da chave.
func (s *CounterStore) Check(limit int, key domain.ClientKey) (domain.Outcome, error) {
	if limit <= 0 {
		return domain.Outcome{}, fmt.Errorf("%w: got %d", domain.ErrInvalidLimit, limit)
	}

	now := s.now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	ent, ok := sh.lru.Get(key)
	switch {
	case !ok:
		ent = &counterEntry{expiresAt: now.Add(s.window)}
		sh.lru.Add(key, ent)
		s.total.Add(1)
	case !now.Before(ent.expiresAt):
		ent.count = 0
		ent.expiresAt = now.Add(s.window)
	}
	ent.count++
	ent.lastUsed = s.ticks.Add(1)

	var out domain.Outcome
	if ent.count > limit {
		out = domain.Rejected(limit, ent.expiresAt)
	} else {
		out = domain.Admitted(limit, limit-ent.count, ent.expiresAt)
	}
	sh.mu.Unlock()

	if !ok && s.total.Load() > int64(s.capacity) {
		s.evictOverflow()
	}
	return out, nil
}

// evictOverflow despeja a entrada menos recente de todo o store até o total
// voltar à capacidade. Nenhum lock de shard é mantido ao entrar aqui; os
// shards são travados um de cada vez.
func (s *CounterStore) evictOverflow() {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	for s.total.Load() > int64(s.capacity) {
		var (
			victim *shard
			oldest uint64
		)
		for _, sh := range s.shards {
			sh.mu.Lock()
			if _, ent, ok := sh.lru.GetOldest(); ok && (victim == nil || ent.lastUsed < oldest) {
				victim, oldest = sh, ent.lastUsed
			}
			sh.mu.Unlock()
		}
		if victim == nil {
			return
		}

		victim.mu.Lock()
		// Só remove se a candidata não foi tocada desde a varredura.
		if _, ent, ok := victim.lru.GetOldest(); ok && ent.lastUsed == oldest {
			victim.lru.RemoveOldest()
			s.total.Add(-1)
			s.evictions.Add(1)
		}
		victim.mu.Unlock()
	}
}

// Len retorna o número de chaves retidas, incluindo as expiradas ainda não varridas.
func (s *CounterStore) Len() int { return int(s.total.Load()) }

// Cleanup remove as entradas cuja janela já terminou e retorna quantas removeu.
func (s *CounterStore) Cleanup() int {
	now := s.now()
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, key := range sh.lru.Keys() {
			if ent, ok := sh.lru.Peek(key); ok && !now.Before(ent.expiresAt) {
				sh.lru.Remove(key)
				s.total.Add(-1)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed
}

// StartJanitor inicia uma goroutine que varre entradas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *CounterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

func (s *CounterStore) shardFor(key domain.ClientKey) *shard {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	return s.shards[xxhash.Sum64String(string(key))%uint64(len(s.shards))]
}
