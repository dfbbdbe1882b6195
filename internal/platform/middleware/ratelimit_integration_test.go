//go:build integration

package middleware_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipgate/internal/platform/middleware"
	"slipgate/pkg/testutil/containers"
)

func TestRateLimiter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func(handler http.Handler, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/slips/tok-1", nil)
		req.RemoteAddr = ip + ":51234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("requests over the limit get 429", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		limited := middleware.NewRateLimiter(rc.Client, logger, 3, time.Hour).Limit(okHandler)

		for i := 0; i < 3; i++ {
			rr := do(limited, "192.0.2.1")
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "3", rr.Header().Get("X-RateLimit-Limit"))
		}

		rr := do(limited, "192.0.2.1")
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	})

	t.Run("limits are per client address", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		limited := middleware.NewRateLimiter(rc.Client, logger, 1, time.Hour).Limit(okHandler)

		assert.Equal(t, http.StatusOK, do(limited, "192.0.2.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, do(limited, "192.0.2.1").Code)
		assert.Equal(t, http.StatusOK, do(limited, "192.0.2.2").Code)
	})

	t.Run("nil client passes everything through", func(t *testing.T) {
		open := middleware.NewRateLimiter(nil, logger, 1, time.Minute).Limit(okHandler)
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, do(open, "192.0.2.3").Code)
		}
	})
}
