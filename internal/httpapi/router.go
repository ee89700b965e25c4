package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ndsregistry/internal/platform/middleware"
)

// NewRouter assembles the HTTP surface. Health and metrics stay outside the
// key gate; everything under /api requires the shared API key and rejects
// before any handler runs.
func (h *Handler) NewRouter(apiKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(h.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(apiKey, h.logger))

		r.Get("/meta", h.Meta)
		r.Get("/stats", h.Stats)
		r.Get("/users/lookup", h.LookupUser)

		r.Route("/cases", func(r chi.Router) {
			r.Get("/", h.ListCases)
			r.With(h.requireOperator).Post("/", h.CreateCase)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCase)
				r.With(h.requireOperator).Patch("/", h.PatchCase)
				r.With(h.requireOperator).Post("/events", h.AddEvent)
			})
		})

		r.Route("/identities/{id}/intel", func(r chi.Router) {
			r.Get("/", h.ListIntel)
			r.With(h.requireOperator).Post("/", h.AddIntel)
		})
	})

	return r
}
