// Package httpapi is the device-facing HTTP front end: it receives the
// wearable's audio upload, hands it to the dispatcher, and renders the
// normalized result in the device's expected response shape.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rebble-dev/asr-gateway/internal/app"
	"github.com/rebble-dev/asr-gateway/internal/observability"
)

// NewRouter constructs the HTTP router for the gateway.
func NewRouter(application *app.Application, h *Handler) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger)

	// Device-facing endpoints (fixed paths baked into the firmware).
	r.Get("/heartbeat", h.Heartbeat)
	r.Post("/NmspServlet/", h.Recognize)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if application.StartupTime.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	// Plain JSON surface for tooling and local testing.
	r.Post("/v1/transcribe", h.Transcribe)

	return r
}
