// Package async desacopla o registro de estatísticas do caminho da requisição.
package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
	"github.com/jwinr/TechNexus-sub000/internal/core/ports"
	"github.com/jwinr/TechNexus-sub000/internal/observability"
)

var (
	ErrQueueFull = errors.New("stats queue is full")
	ErrClosed    = errors.New("stats recorder is closed")
)

// Recorder enfileira eventos num canal limitado e os repassa ao StatsRecorder
// interno em uma única goroutine. Record nunca bloqueia: com a fila cheia o
// evento é descartado.
type Recorder struct {
	inner   ports.StatsRecorder
	logger  *observability.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan domain.AdmissionEvent
	done   chan struct{}

	dropped atomic.Int64
}

var _ ports.StatsRecorder = (*Recorder)(nil)

type Option func(*Recorder)

// WithTimeout limita cada chamada ao StatsRecorder interno.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

func NewRecorder(inner ports.StatsRecorder, buffer int, logger *observability.Logger, opts ...Option) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = observability.NewNop()
	}

	r := &Recorder{
		inner:   inner,
		logger:  logger,
		timeout: 2 * time.Second,
		events:  make(chan domain.AdmissionEvent, buffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.run()
	return r
}

func (r *Recorder) Record(_ context.Context, ev domain.AdmissionEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}

	select {
	case r.events <- ev:
		return nil
	default:
		r.dropped.Add(1)
		return ErrQueueFull
	}
}

func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close para de aceitar eventos e espera a fila esvaziar ou o ctx encerrar.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.inner.Record(ctx, ev)
		cancel()
		if err != nil {
			r.logger.Warnw("failed to record admission stats", "verdict", ev.Verdict, "error", err)
		}
	}
}
