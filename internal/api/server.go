// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the thin internal ops/control HTTP surface the UI
// gateway calls: read-only queries over robots/routes/sessions/violations,
// plus Supervisor mutation endpoints. The gateway owns authentication; this
// surface trusts its caller.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/supervisor"
	"github.com/fleetguard/patrolcore/internal/log"
)

// Server wires Store reads, Supervisor mutations, and request validation
// into a single chi.Router.
type Server struct {
	store      ports.Store
	supervisor *supervisor.Supervisor

	rateLimitPerMin int
	validator       *requestValidator
}

// Config configures the Server's cross-cutting behavior.
type Config struct {
	RateLimitPerMin int
	// OpenAPIPath, if non-empty, is loaded and used to validate every
	// request against the embedded contract; responses are not validated. An empty path
	// disables validation (useful for tests exercising error paths the
	// document intentionally does not describe).
	OpenAPIPath string
}

// New constructs a Server. If cfg.OpenAPIPath is set and fails to load, New
// returns an error rather than silently serving unvalidated traffic.
func New(store ports.Store, sup *supervisor.Supervisor, cfg Config) (*Server, error) {
	s := &Server{
		store:           store,
		supervisor:      sup,
		rateLimitPerMin: cfg.RateLimitPerMin,
	}
	if cfg.OpenAPIPath != "" {
		v, err := newRequestValidator(cfg.OpenAPIPath)
		if err != nil {
			return nil, err
		}
		s.validator = v
	}
	return s, nil
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(log.Middleware())
	r.Use(otelHTTP("patrolcore"))
	r.Use(s.rateLimit())
	if s.validator != nil {
		r.Use(s.validator.middleware())
	}

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/robots", func(r chi.Router) {
		r.Get("/", s.handleListRobots)
		r.Get("/{robotID}", s.handleGetRobot)
	})

	r.Route("/routes", func(r chi.Router) {
		r.Get("/", s.handleListRoutes)
		r.Get("/{routeID}", s.handleGetRoute)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Get("/{sessionID}", s.handleGetSession)
		r.Get("/{sessionID}/inspections", s.handleListInspections)
	})

	r.Get("/violations", s.handleListViolations)

	r.Route("/patrols", func(r chi.Router) {
		r.Post("/", s.handleStartPatrol)
		r.Post("/{robotID}/pause", s.handlePause)
		r.Post("/{robotID}/resume", s.handleResume)
		r.Post("/{robotID}/stop", s.handleStop)
		r.Post("/{robotID}/emergency-stop", s.handleEmergencyStop)
		r.Post("/{robotID}/speed", s.handleSetSpeed)
		r.Post("/{robotID}/stop-home-decision", s.handleResolveStopHome)
	})

	return r
}

// rateLimit applies a per-caller sliding-window limit; a non-positive
// configured rate disables limiting entirely (local/dev use).
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.rateLimitPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.rateLimitPerMin,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
		}),
	)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
