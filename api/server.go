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
  4. CORS:       Cross-origin requests for frontend
  5. RequireUser: Rejects /api requests without an X-User-ID header

USER SCOPING:
  The X-User-ID header is trusted as-is. An authenticating proxy is
  expected to set it in production; there is no auth in this layer.

ROUTE GROUPS:
  /api/transactions/*    Ledger operations
  /api/overview          Dashboard aggregate
  /api/recurring/*       Recurring definitions + catch-up
  /api/income/*          Income catch-up
  /api/accounts/*        Account management
  /api/bills/*           Bill management
  /api/income-sources/*  Income source management
  /api/goals/*           Savings goals
  /api/settings          Pay schedule configuration
  /api/scenarios/*       Demo data loaders (dev/demo only)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/keel/budget-engine/engine"
)

// userHeader names the trusted user identity header.
const userHeader = "X-User-ID"

func userID(r *http.Request) engine.UserID {
	return engine.UserID(r.Header.Get(userHeader))
}

// RequireUser rejects requests that carry no user identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(userHeader) == "" {
			writeError(w, engine.Validationf("missing %s header", userHeader))
			return
		}
		next.ServeHTTP(w, r)
	})
}

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", userHeader},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireUser)

		// Ledger routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		// Dashboard
		r.Get("/overview", h.GetOverview)

		// Recurring definitions + catch-up
		r.Route("/recurring", func(r chi.Router) {
			r.Get("/", h.ListRecurring)
			r.Post("/", h.SaveRecurring)
			r.Put("/{id}", h.SaveRecurring)
			r.Delete("/{id}", h.DeleteRecurring)
			r.Post("/process", h.ProcessRecurring)
		})

		// Income catch-up
		r.Post("/income/process", h.ProcessIncome)

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.SaveAccount)
			r.Put("/{id}", h.SaveAccount)
			r.Delete("/{id}", h.DeleteAccount)
		})

		// Bill routes
		r.Route("/bills", func(r chi.Router) {
			r.Get("/", h.ListBills)
			r.Post("/", h.SaveBill)
			r.Put("/{id}", h.SaveBill)
			r.Delete("/{id}", h.DeleteBill)
		})

		// Income source routes
		r.Route("/income-sources", func(r chi.Router) {
			r.Get("/", h.ListIncomeSources)
			r.Post("/", h.SaveIncomeSource)
			r.Put("/{id}", h.SaveIncomeSource)
			r.Delete("/{id}", h.DeleteIncomeSource)
		})

		// Goal routes
		r.Route("/goals", func(r chi.Router) {
			r.Get("/", h.ListGoals)
			r.Post("/", h.SaveGoal)
			r.Put("/{id}", h.SaveGoal)
			r.Delete("/{id}", h.DeleteGoal)
		})

		// Settings
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.SaveSettings)

		// Demo scenarios (wipe and reseed the requesting user)
		r.Get("/scenarios", h.ListScenarios)
		r.Post("/scenarios/load", h.LoadScenario)
	})

	return r
}
