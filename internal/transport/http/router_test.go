package httptransport

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"slipgate/pkg/testutil"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) Health(ctx context.Context) error { return f(ctx) }

type pingRegistrar struct{}

func (pingRegistrar) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRouter(t *testing.T) {
	healthy := checkFunc(func(context.Context) error { return nil })
	broken := checkFunc(func(context.Context) error { return errors.New("connection refused") })

	testutil.Given(t, "a router with healthy dependencies", func(t *testing.T) {
		router := NewRouter(map[string]HealthChecker{"postgres": healthy}, pingRegistrar{})

		testutil.When(t, "healthz is requested", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
			testutil.AssertStatus(t, rr, http.StatusOK)
			testutil.AssertJSONContains(t, rr, "status", "ok")
			testutil.AssertJSONContains(t, rr, "postgres", "ok")
		})

		testutil.When(t, "metrics are scraped", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/metrics", nil))
			testutil.AssertStatus(t, rr, http.StatusOK)
			assert.Contains(t, rr.Body.String(), "go_goroutines")
		})

		testutil.When(t, "a registered handler route is requested", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/ping", nil))
			testutil.AssertStatus(t, rr, http.StatusOK)
		})
	})

	testutil.Given(t, "a router with a failing dependency", func(t *testing.T) {
		router := NewRouter(map[string]HealthChecker{"postgres": healthy, "redis": broken})

		testutil.Then(t, "healthz reports degraded", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
			testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
			testutil.AssertJSONContains(t, rr, "status", "degraded")
			testutil.AssertJSONContains(t, rr, "redis", "connection refused")
			testutil.AssertJSONContains(t, rr, "postgres", "ok")
		})
	})
}
