package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"mapchat/api/internal/metrics"
)

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, Deps{})

	rr := do(h, http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if ok := decode(t, rr)["ok"]; ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected a request id header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	h := newTestServer(t, Deps{Checks: map[string]func(context.Context) error{
		"database": func(context.Context) error { return nil },
	}})

	rr := do(h, http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decode(t, rr)
	if response["status"] != "ready" {
		t.Errorf("expected status=ready, got %v", response["status"])
	}
	database := response["checks"].(map[string]any)["database"].(map[string]any)
	if database["status"] != "ok" {
		t.Errorf("expected database status ok, got %v", database["status"])
	}
}

func TestReadyEndpoint_DependencyDown(t *testing.T) {
	h := newTestServer(t, Deps{Checks: map[string]func(context.Context) error{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}})

	rr := do(h, http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	response := decode(t, rr)
	if response["ok"] != false {
		t.Errorf("expected ok=false, got %v", response["ok"])
	}
	redis := response["checks"].(map[string]any)["redis"].(map[string]any)
	if redis["error"] != "connection refused" {
		t.Errorf("expected redis error to be reported, got %v", redis["error"])
	}
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	m := metrics.New()
	h := newTestServer(t, Deps{Metrics: m})

	do(h, http.MethodGet, "/api/health", nil)
	rr := do(h, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	want := `mapchat_http_requests_total{method="GET",route="/api/health",status="200"} 1`
	if !strings.Contains(rr.Body.String(), want) {
		t.Errorf("expected %s in metrics output", want)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, Deps{CORSOrigin: "https://maps.example.com"})

	req := func(r *http.Request) {
		r.Header.Set("Origin", "https://maps.example.com")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rr := do(h, http.MethodOptions, "/api/sessions", nil, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://maps.example.com" {
		t.Errorf("expected allow origin header, got %q", got)
	}
}
