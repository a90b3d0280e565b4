// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
	"github.com/jwinr/TechNexus-sub000/internal/core/ports"
	"github.com/jwinr/TechNexus-sub000/internal/observability"
)

const (
	rateLimitExceededMessage = "Rate limit exceeded. Please try again later."
	accessDeniedMessage      = "Access denied."

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"

	DefaultAPIKeyHeader = "X-API-Key"
)

var errNoLimiter = errors.New("no rate limiter configured")

type Options struct {
	KeyFunc      KeyFunc
	APIKeyHeader string
	// Stats recebe um evento por requisição. Deve ser não bloqueante
	// (ex.: async.Recorder); erros são ignorados.
	Stats ports.StatsRecorder
	// RouteLabel classifica a requisição nos eventos de Stats. O padrão usa
	// apenas "protected"/"public" para não deixar o cliente controlar a
	// cardinalidade.
	RouteLabel func(r *http.Request) string
	Logger     *observability.Logger
	Now        func() time.Time
}

type Option func(*Options)

func WithKeyFunc(fn KeyFunc) Option {
	return func(o *Options) { o.KeyFunc = fn }
}

func WithAPIKeyHeader(header string) Option {
	return func(o *Options) { o.APIKeyHeader = header }
}

func WithStats(stats ports.StatsRecorder) Option {
	return func(o *Options) { o.Stats = stats }
}

func WithRouteLabel(fn func(r *http.Request) string) Option {
	return func(o *Options) { o.RouteLabel = fn }
}

func WithLogger(logger *observability.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

type gate struct {
	limiter ports.RateLimiter
	guard   ports.APIKeyGuard
	opts    Options
	sampled rate.Sometimes
}

// NewAdmissionMiddleware aplica, nesta ordem, o rate limit por cliente e a
// verificação de API key do namespace protegido. Qualquer falha interna na
// extração da chave ou no limiter rejeita a requisição com 429.
func NewAdmissionMiddleware(limiter ports.RateLimiter, guard ports.APIKeyGuard, opts ...Option) func(http.Handler) http.Handler {
	o := Options{
		KeyFunc:      ClientKeyFunc("X-Real-IP", true),
		APIKeyHeader: DefaultAPIKeyHeader,
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = observability.NewNop()
	}
	if o.KeyFunc == nil {
		o.KeyFunc = ClientKeyFunc("X-Real-IP", true)
	}
	if o.APIKeyHeader == "" {
		o.APIKeyHeader = DefaultAPIKeyHeader
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.RouteLabel == nil {
		o.RouteLabel = namespaceLabel(guard)
	}

	g := &gate{
		limiter: limiter,
		guard:   guard,
		opts:    o,
		sampled: rate.Sometimes{Interval: time.Second},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := g.opts.Now()
			decision, err := g.check(r)
			if err != nil {
				g.opts.Logger.Errorw("admission check failed, rejecting request",
					"client", decision.Identifier,
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
				)
				g.record(r, decision.Identifier, domain.VerdictError, now)
				writeTooManyRequests(w, decision.ResetAt, now)
				return
			}

			if !decision.Admitted {
				g.sampled.Do(func() {
					g.opts.Logger.Debugw("rate limit exceeded",
						"client", decision.Identifier,
						"limit", decision.Limit,
						"path", r.URL.Path,
					)
				})
				g.record(r, decision.Identifier, domain.VerdictRateLimited, now)
				writeTooManyRequests(w, decision.ResetAt, now)
				return
			}

			h := w.Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
			if !decision.ResetAt.IsZero() {
				h.Set(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}

			if g.guard != nil {
				if err := g.guard.Authorize(r.URL.Path, r.Header.Get(g.opts.APIKeyHeader)); err != nil {
					g.record(r, decision.Identifier, domain.VerdictForbidden, now)
					writeForbidden(w)
					return
				}
			}

			g.record(r, decision.Identifier, domain.VerdictAdmitted, now)
			next.ServeHTTP(w, r)
		})
	}
}

// check extrai a chave e consulta o limiter; panics viram erro para que o
// chamador rejeite a requisição.
func (g *gate) check(r *http.Request) (decision domain.Decision, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("admission panic: %v", p)
		}
	}()

	key := g.opts.KeyFunc(r)
	if g.limiter == nil {
		return domain.Decision{Identifier: key}, errNoLimiter
	}
	decision, err = g.limiter.Allow(r.Context(), domain.RateLimitRequest{IP: key})
	if decision.Identifier == "" {
		decision.Identifier = key
	}
	return decision, err
}

func (g *gate) record(r *http.Request, key domain.ClientKey, verdict domain.Verdict, at time.Time) {
	if g.opts.Stats == nil {
		return
	}
	_ = g.opts.Stats.Record(r.Context(), domain.AdmissionEvent{
		Identifier: key,
		Verdict:    verdict,
		Method:     r.Method,
		Path:       g.opts.RouteLabel(r),
		At:         at,
	})
}

func namespaceLabel(guard ports.APIKeyGuard) func(r *http.Request) string {
	return func(r *http.Request) string {
		if guard != nil && guard.Protects(r.URL.Path) {
			return "protected"
		}
		return "public"
	}
}

func retryAfterSeconds(resetAt, now time.Time) int {
	if resetAt.IsZero() {
		return 1
	}
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func writeTooManyRequests(w http.ResponseWriter, resetAt, now time.Time) {
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(resetAt, now)))
	writeText(w, http.StatusTooManyRequests, rateLimitExceededMessage)
}

func writeForbidden(w http.ResponseWriter) {
	writeText(w, http.StatusForbidden, accessDeniedMessage)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
