// Package admin exposes the operator surface: health, metrics, an admission
// smoke-test endpoint, and the out-of-band tenant unblock. It is not on the
// data path; the upstream terminator calls the gate directly.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantgate/internal/admission"
	"tenantgate/pkg/log"
)

type Config struct {
	Port int `mapstructure:"port" env:"ADMIN_PORT"`
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	srv    *http.Server
	gate   *admission.Gate
	health Pinger
	log    log.Logger
}

func NewServer(cfg Config, gate *admission.Gate, health Pinger, gatherer prometheus.Gatherer, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		gate:   gate,
		health: health,
		log:    logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/v1/evaluate", s.handleEvaluate).Methods("GET")
	router.HandleFunc("/api/v1/tenants/{code}/unblock", s.handleUnblock).Methods("POST")
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start(_ context.Context) error {
	s.log.Infof("Admin server listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down admin server...")
	return s.srv.Shutdown(ctx)
}

func (s *Server) String() string {
	return fmt.Sprintf("AdminServer on %s", s.srv.Addr)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		s.log.Warnf("Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	addr := r.URL.Query().Get("ip")
	if addr == "" {
		addr = r.RemoteAddr
	}

	decision := s.gate.Evaluate(r.Context(), code, addr)
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	success := s.gate.Unblock(r.Context(), code)
	status := http.StatusOK
	if !success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]bool{"success": success})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
