// Package router assembles the HTTP surface of the scheduling service.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/telehealth-scheduling/internal/appointments"
	"github.com/wolfman30/telehealth-scheduling/internal/availability"
	httpmiddleware "github.com/wolfman30/telehealth-scheduling/internal/http/middleware"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	AvailabilityHandler *availability.Handler
	WebhookHandler      *appointments.WebhookHandler
	MetricsHandler      http.Handler
	StaffAuthSecret     string
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.WebhookHandler != nil {
			public.Mount("/webhooks", cfg.WebhookHandler.Routes())
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Patient-facing booking API
	if cfg.AppointmentsHandler != nil {
		r.Mount("/appointments", cfg.AppointmentsHandler.Routes())
		r.Mount("/accounts", cfg.AppointmentsHandler.UpcomingRoutes())
	}
	if cfg.AvailabilityHandler != nil {
		r.Mount("/providers", cfg.AvailabilityHandler.Routes())
	}

	// Staff endpoints (attendance marking) behind JWT
	if cfg.StaffAuthSecret != "" && cfg.AppointmentsHandler != nil {
		r.Route("/staff", func(staff chi.Router) {
			staff.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
			staff.Mount("/appointments", cfg.AppointmentsHandler.Routes())
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
