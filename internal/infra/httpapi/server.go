// Package httpapi is the thin administrative HTTP surface of the scheduler.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"warranty_reminder/internal/infra/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Scheduler is what the admin surface needs from the coordinator.
type Scheduler interface {
	Status() scheduler.Status
	TriggerNow(ctx context.Context) (scheduler.TriggerResult, error)
	PromoteOnFirstRequest()
}

// Options configures the router.
type Options struct {
	AdminToken     string
	AllowedOrigins []string
}

// NewRouter wires middleware and routes. The admin group is only mounted when an
// admin token is configured, and CORS headers are only emitted for listed origins.
func NewRouter(sched Scheduler, opts Options, logger *logrus.Entry) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(promoteScheduler(sched))

	if len(opts.AllowedOrigins) > 0 {
		c := corslib.New(corslib.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
		})
		r.Use(c.Handler)
	}

	h := &handler{sched: sched, logger: logger}

	r.Get("/healthz", h.health)

	if opts.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is not set, admin scheduler endpoints are disabled")
		return r
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(bearerAuth(opts.AdminToken))
		r.Get("/scheduler/status", h.status)
		r.Post("/scheduler/trigger", h.trigger)
	})

	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
// The write timeout is generous because a manual trigger runs a full pass synchronously.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
