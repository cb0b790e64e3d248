package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpmiddleware "github.com/wolfman30/avito-asker/internal/http/middleware"
	"github.com/wolfman30/avito-asker/internal/leads"
	"github.com/wolfman30/avito-asker/internal/observability/metrics"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

func newTestRouter(t *testing.T, readiness ReadinessFunc) (http.Handler, *leads.InMemoryRepository) {
	t.Helper()

	logger := logging.Nop()
	repo := leads.NewInMemoryRepository()
	reg := prometheus.NewRegistry()
	m := metrics.NewAskerMetrics(reg)
	m.ObserveInbound(metrics.OutcomeProcessed, 0.01)

	cfg := &Config{
		Logger:         logger,
		LeadsHandler:   leads.NewHandler(repo, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Readiness:      readiness,
	}
	return New(cfg), repo
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if rr.Header().Get(httpmiddleware.RequestIDHeader) == "" {
		t.Errorf("expected request id header")
	}
}

func TestRouterEchoesRequestID(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(httpmiddleware.RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get(httpmiddleware.RequestIDHeader); got != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestRouterReadiness(t *testing.T) {
	tests := []struct {
		name      string
		readiness ReadinessFunc
		status    int
		want      string
	}{
		{name: "no check", readiness: nil, status: http.StatusOK, want: "ready"},
		{name: "healthy", readiness: func(context.Context) error { return nil }, status: http.StatusOK, want: "ready"},
		{name: "redis down", readiness: func(context.Context) error { return errors.New("redis: connection refused") }, status: http.StatusServiceUnavailable, want: "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, tt.readiness)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp["status"] != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, resp["status"])
			}
		})
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `asker_router_inbound_total{outcome="processed"} 1`) {
		t.Fatalf("expected inbound counter in metrics output, got:\n%s", body)
	}
}

func TestRouterLeadLookup(t *testing.T) {
	router, repo := newTestRouter(t, nil)
	if _, err := repo.Insert(context.Background(), leads.New("contact-1", "owner-1", "thread-1", "S1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/leads/contact-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var lead leads.Lead
	if err := json.NewDecoder(rr.Body).Decode(&lead); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lead.ContactID != "contact-1" || lead.CurrentState != "S1" || lead.Version != 1 {
		t.Fatalf("unexpected lead %+v", lead)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/leads/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
