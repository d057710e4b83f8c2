// Package ratelimit throttles the unauthenticated public routes. Public
// tokens and access codes are bearer secrets, so lookups are limited per
// client IP with a sliding window.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"esfe/pkg/platform/httputil"
	"esfe/pkg/requestcontext"
)

var rejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "esfe_rate_limit_rejected_total",
	Help: "Requests refused by the public rate limiter",
}, []string{"class"})

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

type Middleware struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

func New(store Store, limit int, window time.Duration, logger *slog.Logger) *Middleware {
	return &Middleware{store: store, limit: limit, window: window, logger: logger}
}

// Limit returns middleware counting requests per client IP under class.
// Store failures let the request through.
func (m *Middleware) Limit(class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			if ip == "" {
				ip = r.RemoteAddr
			}

			res, err := m.store.Allow(ctx, class+":"+ip, m.limit, m.window)
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed", "class", class, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				rejected.WithLabelValues(class).Inc()
				retry := int(time.Until(res.ResetAt).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limit_exceeded",
					"error_description": "Too many requests. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
