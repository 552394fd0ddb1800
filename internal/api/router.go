package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/auth"
	"github.com/samely/samely/internal/metrics"
	"github.com/samely/samely/internal/ratelimit"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetricsRecorder is the subset of metrics the handlers report to.
type MetricsRecorder interface {
	IncAuthFailure(authType string)
	IncAuthSuccess(authType string)
	IncRateLimitRejection(scope string)
	IncAssignmentOp(op, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) IncAuthFailure(string)          {}
func (nopMetrics) IncAuthSuccess(string)          {}
func (nopMetrics) IncRateLimitRejection(string)   {}
func (nopMetrics) IncAssignmentOp(string, string) {}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Users       *user.Service
	Teams       *team.Service
	Assignments *assignment.Service
	Sessions    auth.SessionLookup
	Limiter     *ratelimit.Limiter // per authenticated user
	AuthLimiter *ratelimit.Limiter // per client IP on signup and login
	Metrics     *metrics.Metrics
	DBPool      Pinger

	AllowedOrigins []string
	Version        string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	var rec MetricsRecorder = nopMetrics{}
	if deps.Metrics != nil {
		rec = deps.Metrics
	}

	// Global middleware.
	r.Use(requestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/health", healthHandler(deps.DBPool))
	r.Get("/.well-known/samely.json", wellKnownHandler(deps.Version))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.PrometheusHandler())
	}

	authH := newAuthHandler(deps.Users, rec)
	teams := newTeamsHandler(deps.Teams)
	assignments := newAssignmentsHandler(deps.Assignments, rec)

	r.Route("/api/v1", func(ar chi.Router) {
		// Public routes.
		ar.Group(func(pr chi.Router) {
			if deps.AuthLimiter != nil {
				pr.Use(ratelimit.Middleware(deps.AuthLimiter, ratelimit.ByIP, func() { rec.IncRateLimitRejection("auth") }))
			}
			pr.Post("/auth/signup", authH.Signup)
			pr.Post("/auth/login", authH.Login)
		})

		ar.Get("/surahs", surahsHandler())

		// Session-authed routes.
		ar.Group(func(sr chi.Router) {
			sr.Use(auth.SessionMiddleware(deps.Sessions, func() { rec.IncAuthFailure("session") }))
			if deps.Limiter != nil {
				sr.Use(ratelimit.Middleware(deps.Limiter, ratelimit.ByUser, func() { rec.IncRateLimitRejection("user") }))
			}

			sr.Post("/auth/logout", authH.Logout)
			sr.Get("/auth/me", authH.Me)

			sr.Get("/assignments/my", assignments.ListMine)
			sr.Get("/assignments/ta", assignments.ListSupervised)

			sr.Get("/teams", teams.List)
			sr.Post("/teams", teams.Create)
			sr.Post("/teams/join", teams.Join)
			sr.Post("/teams/members", teams.AddMember)
			sr.Delete("/teams/members", teams.RemoveMember)

			sr.Route("/teams/{team}", func(tr chi.Router) {
				tr.Get("/", teams.Get)
				tr.Get("/activity", teams.Activity)
				tr.Get("/ta", assignments.ListTeamSupervised)

				tr.Get("/assignments", assignments.ListTeam)
				tr.Post("/assignments", assignments.Create)
				tr.Put("/assignments", assignments.Update)
				tr.Patch("/assignments", assignments.Grade)
				tr.Delete("/assignments", assignments.Delete)
				tr.Get("/assignments/{assignmentID}", assignments.Get)
			})

			if deps.Metrics != nil {
				sr.Get("/metrics/summary", deps.Metrics.Handler())
			}
		})
	})

	return r
}

// healthHandler reports liveness and, when a pool is configured, database
// reachability.
func healthHandler(pool Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				slog.Error("health check: database unreachable", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":   "degraded",
					"database": "unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "connected",
		})
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
