// Package redis disponibiliza o sink de estatísticas de admissão baseado em Redis.
//
// Os contadores de rate limit continuam em memória; aqui só são gravados
// agregados das decisões (por veredito, por rota e por minuto).
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
	"github.com/jwinr/TechNexus-sub000/internal/core/ports"
)

type StatsStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ports.StatsRecorder = (*StatsStorage)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL aplica apenas aos buckets por minuto; os totais não expiram.
	TTL time.Duration
}

func New(cfg Config) (*StatsStorage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, cfg.Prefix, cfg.TTL), nil
}

func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *StatsStorage {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "admission:stats"
	}
	return &StatsStorage{client: client, prefix: prefix, ttl: ttl}
}

func (s *StatsStorage) Close() error {
	return s.client.Close()
}

func (s *StatsStorage) TotalKey() string { return s.prefix + ":total" }
func (s *StatsStorage) RouteKey() string { return s.prefix + ":route" }

func (s *StatsStorage) MinuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func (s *StatsStorage) Record(ctx context.Context, ev domain.AdmissionEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Verdict)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, s.TotalKey(), field, 1)

	bucket := s.MinuteKey(at)
	pipe.HIncrBy(ctx, bucket, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucket, s.ttl)
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.RouteKey(), route+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}
