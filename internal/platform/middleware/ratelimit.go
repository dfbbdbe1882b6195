package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window per-IP counter over Redis. Access tokens are
// the only credential on the guardian surface, so the token endpoints get a
// throttle against enumeration attempts.
type RateLimiter struct {
	client *redis.Client
	logger *slog.Logger
	limit  int
	window time.Duration
}

// NewRateLimiter builds the limiter. A nil client disables limiting; the
// middleware becomes a pass-through.
func NewRateLimiter(client *redis.Client, logger *slog.Logger, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		limit:  limit,
		window: window,
	}
}

// Limit is the middleware. Redis errors fail open; availability of the
// signing flow outranks the throttle.
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.client == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := clientIP(r)
		key := fmt.Sprintf("slipgate:ratelimit:%s:%d", ip, time.Now().Unix()/int64(l.window.Seconds()))

		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			l.logger.WarnContext(ctx, "rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			l.client.Expire(ctx, key, l.window)
		}

		remaining := l.limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(count) > l.limit {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
