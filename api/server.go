/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     zap request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /health               Liveness
  /api/auth/*           Login
  /api/admin/*          Authenticated + RequireAdmin
  /api/me/*             Authenticated + RequireAuthor
  /api/admin/scenarios  Demo scenarios, only when enabled

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authentication
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
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticated)

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(h.RequireAdmin)

				r.Route("/authors", func(r chi.Router) {
					r.Get("/", h.ListAuthors)
					r.Post("/", h.CreateAuthor)
					r.Get("/{id}", h.GetAuthor)
					r.Put("/{id}", h.UpdateAuthor)
					r.Delete("/{id}", h.DeleteAuthor)
					r.Get("/{id}/books", h.ListAuthorBooks)
					r.Get("/{id}/withdrawals", h.ListAuthorWithdrawals)
					r.Post("/{id}/withdrawals", h.RequestAuthorWithdrawal)
				})

				r.Post("/books", h.CreateBook)
				r.Get("/books/{id}/sales", h.ListBookSales)
				r.Post("/sales", h.RecordSale)
				r.Post("/covers", h.UploadCover)
				r.Get("/withdrawals/pending", h.ListPendingWithdrawals)

				if h.scenarios {
					r.Route("/scenarios", func(r chi.Router) {
						r.Get("/", h.ListScenarios)
						r.Post("/load", h.LoadScenario)
					})
				}
			})

			// Author self-service
			r.Route("/me", func(r chi.Router) {
				r.Use(h.RequireAuthor)

				r.Get("/", h.Me)
				r.Get("/earnings", h.MyEarnings)
				r.Get("/withdrawals", h.MyWithdrawals)
				r.Post("/withdrawals", h.RequestMyWithdrawal)
			})
		})
	})

	return r
}
