/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/customers/*   Account management, balances, schedules
  /api/items/*       Item-level operations
  /api/payments/*    Payment ledger
  /api/reports/*     Due/overdue report
  /api/history/*     Archive and restore

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
		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
			r.Put("/{id}", h.UpdateCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/schedule", h.GetSchedule)
			r.Get("/{id}/payments", h.GetPayments)
			r.Get("/{id}/billing", h.GetMonthlyBilling)
			r.Post("/{id}/items", h.AddItem)
		})

		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Post("/{id}/pullout", h.PullOutItem)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/due", h.DueReport)
		})

		// History routes
		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.GetHistory)
			r.Post("/{id}/restore", h.RestoreHistory)
		})
	})

	return r
}
