/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/holders/*        Holder management and contributions
  /api/events/*         Approval workflow surface
  /api/kpi/*            Quarterly KPI scoring
  /api/withdrawals/*    Withdrawal tax quotes
  /api/distributions/*  Period and record queries, payment transitions
  /api/admin/*          Quarterly batch trigger
  /api/ledger/*         Revenue/expense ingest
  /api/tiers            Tier table

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Holder routes
		r.Route("/holders", func(r chi.Router) {
			r.Get("/", h.ListHolders)
			r.Post("/", h.CreateHolder)
			r.Get("/{id}", h.GetHolder)
			r.Post("/{id}/contributions", h.RecordContribution)
			r.Post("/{id}/deactivate", h.DeactivateHolder)
			r.Get("/{id}/events", h.ListEvents)
		})

		// Approval routes
		r.Route("/events", func(r chi.Router) {
			r.Post("/{id}/approve", h.ApproveEvent)
			r.Post("/{id}/reject", h.RejectEvent)
		})

		// KPI routes
		r.Route("/kpi", func(r chi.Router) {
			r.Post("/{staffID}/{quarter}", h.CalculateKpi)
			r.Get("/{staffID}/{quarter}", h.GetKpiRecord)
		})

		// Withdrawal routes
		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/quote", h.QuoteWithdrawal)
		})

		// Distribution routes
		r.Route("/distributions", func(r chi.Router) {
			r.Get("/periods", h.ListPeriods)
			r.Get("/periods/{value}", h.GetPeriod)
			r.Post("/records/{id}/pay", h.PayRecord)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/distributions/process", h.ProcessDistribution)
		})

		// Ledger routes
		r.Route("/ledger", func(r chi.Router) {
			r.Post("/entries", h.RecordLedgerEntry)
		})

		// Config routes
		r.Get("/tiers", h.ListTiers)
	})

	return r
}
