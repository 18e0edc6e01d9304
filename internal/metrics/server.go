package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds the metrics server's listen address and paths.
type ServerConfig struct {
	ListenAddr  string
	MetricsPath string
	HealthPath  string
}

// DefaultServerConfig returns the default address and paths.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:  ":9090",
		MetricsPath: "/metrics",
		HealthPath:  "/health",
	}
}

// HealthChecker probes one dependency; a nil error means healthy.
type HealthChecker func() error

// Check is one named probe result in the health report.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
}

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Server serves prometheus metrics plus kubernetes-style health probes
// (/health, /ready, /live).
type Server struct {
	cfg        ServerConfig
	httpServer *http.Server
	startTime  time.Time
	logger     *slog.Logger

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewServer wires the mux. Zero config fields fall back to defaults.
func NewServer(cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultServerConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = def.MetricsPath
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = def.HealthPath
	}

	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		logger:    logger,
		checkers:  make(map[string]HealthChecker),
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.HandleFunc(cfg.HealthPath, s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/live", s.liveHandler)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// RegisterHealthCheck adds a named probe to /health and /ready.
// Registering while the server runs is allowed.
func (s *Server) RegisterHealthCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("metrics server listening",
		"addr", s.cfg.ListenAddr,
		"metrics_path", s.cfg.MetricsPath,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("metrics server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) snapshotCheckers() map[string]HealthChecker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]HealthChecker, len(s.checkers))
	for name, checker := range s.checkers {
		out[name] = checker
	}
	return out
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]Check)
	overall := statusHealthy
	for name, checker := range s.snapshotCheckers() {
		check := Check{Status: statusHealthy}
		if err := checker(); err != nil {
			check = Check{Status: statusUnhealthy, Message: err.Error()}
			overall = statusUnhealthy
		}
		checks[name] = check
	}

	status := HealthStatus{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if overall != statusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	for _, checker := range s.snapshotCheckers() {
		if err := checker(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

// Uptime reports how long the server has existed.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}
