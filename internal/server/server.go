// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/urlverifier/internal/auth"
	"github.com/pendergraft/urlverifier/internal/config"
	"github.com/pendergraft/urlverifier/internal/middleware/logging"
	"github.com/pendergraft/urlverifier/internal/middleware/ratelimit"
	"github.com/pendergraft/urlverifier/internal/middleware/realip"
	"github.com/pendergraft/urlverifier/internal/middleware/security"
	"github.com/pendergraft/urlverifier/internal/observability/metrics"
	"github.com/pendergraft/urlverifier/internal/storage"
	verificationDomain "github.com/pendergraft/urlverifier/internal/verification/domain"
	verificationTransport "github.com/pendergraft/urlverifier/internal/verification/transport"
)

// Store is the storage the HTTP layer touches directly: API keys for the
// auth middleware and Ping for readiness.
type Store interface {
	auth.Validator
	Ping(ctx context.Context) error
}

// Server is the HTTP server
type Server struct {
	cfg     *config.Config
	store   Store
	logger  *slog.Logger
	router  *chi.Mux
	version string

	verificationSvc verificationTransport.Service
}

// New creates a new server around a chain client, storage and payload cache.
func New(cfg *config.Config, store storage.Store, chainClient verificationDomain.Chain, cache verificationDomain.Cache, logger *slog.Logger, version string) *Server {
	impl := verificationDomain.NewService(chainClient, store, cache, verificationDomain.Config{
		SnapshotsKept: cfg.Storage.SnapshotsKept,
	}, logger)

	return newServer(cfg, store, verificationDomain.LoggingMiddleware(logger)(impl), logger, version)
}

func newServer(cfg *config.Config, store Store, svc verificationTransport.Service, logger *slog.Logger, version string) *Server {
	s := &Server{
		cfg:             cfg,
		store:           store,
		logger:          logger,
		router:          chi.NewRouter(),
		version:         version,
		verificationSvc: svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

// Warmup initializes the chain session once. A failure is logged and
// leaves the server unready; POST /api/v1/initialize can retry.
func (s *Server) Warmup(ctx context.Context) {
	status, err := s.verificationSvc.Initialize(ctx)
	if err != nil {
		s.logger.Warn("chain session not initialized", "error", err)
		return
	}
	s.logger.Info("chain session initialized",
		"network", status.Network,
		"contract", status.ContractAddress,
		"account", status.Account,
	)
}

func (s *Server) setupMiddleware() {
	// Client address first; the filter, limiter and access log read it.
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeKB))
	s.router.Use(ratelimit.Middleware(s.rateLimitConfig()))

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) rateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		SubmitsPerMin:  s.cfg.RateLimit.SubmitsPerMin,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	verificationHandler := verificationTransport.NewHandler(s.verificationSvc)

	s.router.Route("/api/v1", func(r chi.Router) {
		verificationHandler.RegisterReadRoutes(r)

		// Writes spend gas or replace the session.
		r.Group(func(r chi.Router) {
			if s.cfg.Auth.Type == "api-key" {
				r.Use(auth.Middleware(s.store, writeError))
			}
			r.Get("/auth/check", s.handleAuthCheck)
			r.With(ratelimit.SubmitMiddleware(s.rateLimitConfig())).Group(verificationHandler.RegisterWriteRoutes)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// handleAuthCheck lets clients confirm a key without side effects.
func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"auth": s.cfg.Auth.Type}
	if key := auth.KeyFromContext(r.Context()); key != nil {
		resp["keyId"] = key.ID
		resp["name"] = key.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReady reports ready once the chain session is initialized and
// storage answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"chain": "ok", "storage": "ok"}
	ready := true

	status := s.verificationSvc.Status(ctx)
	switch {
	case !status.ContractConfigured:
		checks["chain"] = "contract address not configured"
		ready = false
	case !status.Initialized:
		checks["chain"] = "not initialized"
		ready = false
	}
	if err := s.store.Ping(ctx); err != nil {
		checks["storage"] = err.Error()
		ready = false
	}

	code := http.StatusOK
	state := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		state = "not ready"
	}
	writeJSON(w, code, map[string]any{"status": state, "checks": checks})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
