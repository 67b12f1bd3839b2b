package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"charforge/internal/http/handlers"
	"charforge/internal/infra"
	"charforge/internal/middleware"
)

// NewRouter assembles the operational HTTP surface.
func NewRouter(app *handlers.App, logger infra.Logger, corsOrigins []string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.CORS(corsOrigins))
	r.Use(middleware.Logger(logger))

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/engine/healthz", app.EngineHealth)

	r.Route("/v1/characters/{id}/references", func(r chi.Router) {
		r.With(middleware.RateLimit(10, time.Minute)).Post("/", app.EnqueueReferenceJob)
		r.Get("/", app.ListReferences)
		r.Get("/archive", app.DownloadReferenceSet)
	})

	r.Get("/v1/jobs/{id}", app.GetJob)

	return r
}
