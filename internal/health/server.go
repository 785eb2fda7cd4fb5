// Package health serves liveness, readiness, per-sensor status and
// Prometheus metrics for the sensor daemon.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedwagon-io/idlerguard/internal/lib/logger/sl"
	"github.com/speedwagon-io/idlerguard/internal/model"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse reports whether a outranks b.
func (a Status) worse(b Status) bool {
	return a.rank() > b.rank()
}

func (a Status) rank() int {
	switch a {
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return 0
	}
}

const checkTimeout = 5 * time.Second

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

type HealthChecker interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

type Server struct {
	log      *slog.Logger
	address  string
	gatherer prometheus.Gatherer

	mu       sync.RWMutex
	checkers []HealthChecker
	sensors  SensorSource

	srv      *http.Server
	listener net.Listener
}

// NewServer builds the health server. A nil gatherer disables /metrics.
func NewServer(log *slog.Logger, address string, gatherer prometheus.Gatherer) *Server {
	return &Server{
		log:      log.With(slog.String("component", "health")),
		address:  address,
		gatherer: gatherer,
	}
}

func (s *Server) AddChecker(checker HealthChecker) {
	s.mu.Lock()
	s.checkers = append(s.checkers, checker)
	s.mu.Unlock()
}

// SetSensors enables GET /sensors.
func (s *Server) SetSensors(src SensorSource) {
	s.mu.Lock()
	s.sensors = src
	s.mu.Unlock()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Get("/live", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "OK")
	})
	r.Get("/ready", s.handleReady)
	r.Get("/health", s.handleHealth)
	r.Get("/sensors", s.handleSensors)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Start binds the listen address and serves in the background. Bind errors
// are returned immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	s.log.Info("health server listening", slog.String("address", ln.Addr().String()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health server stopped unexpectedly", sl.Err(err))
		}
	}()
	return nil
}

// Addr is the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// check runs every checker concurrently. Components keep registration order.
func (s *Server) check(ctx context.Context) HealthResponse {
	s.mu.RLock()
	checkers := append([]HealthChecker(nil), s.checkers...)
	s.mu.RUnlock()

	components := make([]ComponentHealth, len(checkers))

	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c HealthChecker) {
			defer wg.Done()
			st, msg := c.Check(ctx)
			components[i] = ComponentHealth{Name: c.Name(), Status: st, Message: msg}
		}(i, c)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, c := range components {
		if c.Status.worse(overall) {
			overall = c.Status
		}
	}

	return HealthResponse{
		Status:     overall,
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := s.check(ctx)

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// handleReady answers 503 while any component is unhealthy.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	if s.check(ctx).Status == StatusUnhealthy {
		writeText(w, http.StatusServiceUnavailable, "NOT READY")
		return
	}
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleSensors(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	src := s.sensors
	s.mu.RUnlock()

	if src == nil {
		writeText(w, http.StatusNotFound, "sensors not registered")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Running bool                          `json:"running"`
		Sensors map[string]model.SensorStatus `json:"sensors"`
	}{
		Running: src.Running(),
		Sensors: src.Statuses(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
