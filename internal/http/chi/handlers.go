package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/marcelsud/webhook-outbox/webhook/dispatcher"
)

// Handlers sets up the engine's operational API routes
func Handlers(ctx context.Context, d *dispatcher.Dispatcher, store webhook.Reader, metricsHandler http.Handler) *chi.Mux {
	logger := httplog.NewLogger("webhook-outbox", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// Engine API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/{webhook_id}/events", postEvent(d).ServeHTTP)
		r.Post("/webhooks/{webhook_id}/test", postTest(d).ServeHTTP)
		r.Get("/webhooks/{webhook_id}/deliveries", getDeliveries(store).ServeHTTP)

		r.Get("/engine/status", getStatus(d).ServeHTTP)
		r.Post("/engine/pause", postPause(d).ServeHTTP)
		r.Post("/engine/resume", postResume(d).ServeHTTP)

		r.Post("/deliveries/retry", postRetry(d).ServeHTTP)
		r.Delete("/deliveries", deleteDeliveries(d).ServeHTTP)
	})

	return r
}
