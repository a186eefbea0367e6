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
  /api/shipments/*   Shipment lifecycle
  /metrics           Prometheus counters
  /healthz           Liveness probe

SECURITY NOTE:
  No authentication middleware; an upstream gateway owns identity and puts
  the acting user in X-User-Id / X-User-Name.

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
	"github.com/warp/shipment-engine/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id", "X-User-Name"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/shipments", func(r chi.Router) {
			r.Get("/", h.ListShipments)
			r.Post("/", h.CreateShipment)

			r.Route("/{orderNumber}", func(r chi.Router) {
				r.Get("/", h.GetShipment)
				r.Get("/revenue", h.GetRevenue)
				r.Get("/prices", h.GetPriceLines)
				r.Post("/milestones", h.SubmitMilestone)
				r.Put("/milestones", h.AmendMilestone)
				r.Post("/invoices", h.IssueInvoice)
			})
		})
	})

	// Operational endpoints
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
