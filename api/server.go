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

ROUTE GROUPS:
  /api/users/*      User management
  /api/emissions/*  Activity logging and totals
  /api/analysis/*   AI analysis pipeline
  /*                Landing page

ROUTE ORDER NOTE:
  /api/emissions/total must be registered before /api/emissions/{category}
  or chi would match "total" as a category.

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
		})

		// Emission routes
		r.Route("/emissions", func(r chi.Router) {
			r.Get("/total", h.GetMostRecentTotal)
			r.Get("/total/history", h.GetTotalHistory)
			r.Post("/{category}", h.SubmitMeasurement)
			r.Get("/{category}", h.GetCategoryData)
		})

		// Analysis routes
		r.Route("/analysis", func(r chi.Router) {
			r.Post("/run", h.RunAnalysis)
			r.Get("/previous", h.GetPreviousAnalyses)
		})
	})

	// Landing page
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Emissions Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Emissions Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/users">/api/users</a> - List users</li>
<li>/api/emissions/{category}?user_id=... - Category entries</li>
<li>/api/emissions/total?user_id=... - Most recent cumulative total</li>
<li>/api/emissions/total/history?user_id=... - Daily ledger history</li>
<li>/api/analysis/previous?user_id=... - Stored analyses</li>
</ul>
</body>
</html>`))
	})

	return r
}
