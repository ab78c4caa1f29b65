/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the office dashboard

ROUTE GROUPS:
  /api/sweeps/*        Sweep runs and history
  /api/payments/*      Receipts and manual late fees
  /api/status/*        Derived status of any record
  /api/tenants/*       Move in / move out
  /api/bookings/*      Guest booking transitions
  /api/maintenance/*   Ticket intake and transitions
  /api/rooms/*         Availability
  /api/guests/*        Today's arrivals and departures
  /api/sample-data     Sample property (dev only)
  /metrics             Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/parsonage/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/parsonage-engine/metrics"
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
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/sweeps", func(r chi.Router) {
			r.Post("/", h.RunSweep)
			r.Get("/runs", h.ListRuns)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/{id}/late-fee", h.AssessLateFee)
			r.Post("/{id}/receipts", h.RecordReceipt)
		})

		r.Get("/status/{id}", h.GetStatus)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", h.MoveIn)
			r.Post("/{id}/move-out", h.MoveOut)
		})

		r.Post("/bookings/{id}/events", h.BookingEvent)

		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/", h.ReportMaintenance)
			r.Post("/{id}/events", h.MaintenanceEvent)
		})

		r.Get("/rooms/{id}/availability", h.RoomAvailability)
		r.Get("/guests/today", h.GuestsToday)

		r.Post("/sample-data", h.LoadSampleData)
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}
