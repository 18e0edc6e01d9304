package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %q, want /metrics", cfg.MetricsPath)
	}
	if cfg.HealthPath != "/health" {
		t.Errorf("HealthPath = %q, want /health", cfg.HealthPath)
	}
}

// Zero config fields fall back to the defaults.
func TestNewServer_FillsDefaults(t *testing.T) {
	server := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0"}, nil)

	if server.cfg.ListenAddr != "127.0.0.1:0" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:0", server.cfg.ListenAddr)
	}
	if server.cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %q, want /metrics", server.cfg.MetricsPath)
	}
	if server.cfg.HealthPath != "/health" {
		t.Errorf("HealthPath = %q, want /health", server.cfg.HealthPath)
	}
}

// All probes passing: 200 with per-check detail in the JSON body.
func TestServer_HealthHandler(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)
	server.RegisterHealthCheck("store", func() error { return nil })
	server.RegisterHealthCheck("feed", func() error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var status HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("status = %q, want healthy", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Fatalf("checks count = %d, want 2", len(status.Checks))
	}
	if status.Checks["store"].Status != "healthy" {
		t.Errorf("store check status = %q, want healthy", status.Checks["store"].Status)
	}
}

// A failing probe flips the overall status and the status code, and its
// error lands in the check detail.
func TestServer_HealthHandler_Unhealthy(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)
	server.RegisterHealthCheck("store", func() error { return nil })
	server.RegisterHealthCheck("feed", func() error { return errors.New("connection lost") })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.healthHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var status HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", status.Status)
	}
	if status.Checks["feed"].Message != "connection lost" {
		t.Errorf("feed message = %q, want connection lost", status.Checks["feed"].Message)
	}
	if status.Checks["store"].Status != "healthy" {
		t.Errorf("store check status = %q, want healthy", status.Checks["store"].Status)
	}
}

// Readiness runs the same probes with a plain-text verdict.
func TestServer_ReadyHandler(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)
	server.RegisterHealthCheck("store", func() error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	server.readyHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "ready" {
		t.Errorf("body = %q, want ready", got)
	}
}

func TestServer_ReadyHandler_NotReady(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)
	server.RegisterHealthCheck("store", func() error { return errors.New("database locked") })

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	server.readyHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if got := w.Body.String(); got != "not ready" {
		t.Errorf("body = %q, want not ready", got)
	}
}

// Liveness never consults the checkers.
func TestServer_LiveHandler(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)
	server.RegisterHealthCheck("store", func() error { return errors.New("database locked") })

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	w := httptest.NewRecorder()
	server.liveHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "alive" {
		t.Errorf("body = %q, want alive", got)
	}
}

// Run serves until the context is cancelled, then shuts down cleanly.
func TestServer_RunStopsOnCancel(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	server := NewServer(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_Uptime(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil)

	time.Sleep(10 * time.Millisecond)

	if got := server.Uptime(); got < 10*time.Millisecond {
		t.Errorf("uptime = %v, expected >= 10ms", got)
	}
}
