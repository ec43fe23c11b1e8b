package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/threadsift/threadsift/internal/api"
	"github.com/threadsift/threadsift/internal/api/middleware"
)

// routes builds the HTTP router: the task control API under /api, plus
// health and metrics endpoints.
func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Trace)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(app.registry,
		promhttp.HandlerOpts{Registry: app.registry}))

	taskHandler := api.NewTaskHandler(app.service, app.analyzer, app.analyzeRetry(), app.logger)
	r.Route("/api", func(r chi.Router) {
		taskHandler.Routes(r)
	})

	return r
}
