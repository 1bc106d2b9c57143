package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/v1/tenants/{tenantID}/knowledge:retrieve", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/tenants/42/knowledge:retrieve", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(
		"POST", "/v1/tenants/{tenantID}/knowledge:retrieve", "200"))
	if val < 1 {
		t.Errorf("expected http_requests_total >= 1 for route pattern, got %f", val)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected http_request_duration_seconds to have observations")
	}
}

func TestMiddleware_StatusCodes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.WriteHeader(http.StatusOK) // second call ignored
	})
	r.Get("/implicit", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, tc := range []struct{ path, status string }{
		{"/health", "503"},
		{"/implicit", "200"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, http.NoBody))

			val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", tc.path, tc.status))
			if val < 1 {
				t.Errorf("expected requests_total for %s with status %s >= 1, got %f", tc.path, tc.status, val)
			}
		})
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tenants/9/unknown", http.NoBody))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); val < 1 {
		t.Errorf("expected unmatched 404 to be counted, got %f", val)
	}
	if got := testutil.ToFloat64(httpInFlight); got != 0 {
		t.Errorf("in-flight gauge = %f after request completed", got)
	}
}

func TestRouteLabel_OutsideRouter(t *testing.T) {
	if got := routeLabel(httptest.NewRequest(http.MethodGet, "/x", http.NoBody)); got != "unmatched" {
		t.Errorf("routeLabel = %q, want unmatched", got)
	}
}

func TestRetrievalMetrics_Exposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(KeywordFallbackTotal, GroupStageTotal)

	KeywordFallbackTotal.WithLabelValues("knowledge", "embedding_failed").Inc()
	GroupStageTotal.WithLabelValues("entry", "entered_direct").Inc()

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	body := rr.Body.String()
	for _, want := range []string{
		`hybridrank_keyword_fallback_total{reason="embedding_failed",source="knowledge"}`,
		`hybridrank_group_isolation_decisions_total{outcome="entered_direct",stage="entry"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register() // must not panic
}
