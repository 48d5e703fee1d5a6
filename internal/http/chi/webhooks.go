package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/marcelsud/webhook-outbox/webhook/dispatcher"
)

/* HTTP layer DTOs for the engine API
 * Separate from domain entities to avoid leaking internal structure
 */

// eventRequest represents an event to be delivered
type eventRequest struct {
	Event   string            `json:"event"`
	Payload json.RawMessage   `json:"payload"`
	Headers map[string]string `json:"headers,omitempty"`
}

// eventResponse represents the API response when enqueuing a delivery
type eventResponse struct {
	JobID     string `json:"job_id"`
	WebhookID string `json:"webhook_id"`
}

// retryRequest represents a bulk-retry request
type retryRequest struct {
	WebhookID string `json:"webhook_id,omitempty"`
	MaxAgeSec int    `json:"max_age_sec,omitempty"`
}

// countResponse reports how many records an operation touched
type countResponse struct {
	Count int `json:"count"`
}

// deliveryResponse represents a delivery record in the API
type deliveryResponse struct {
	ID          string     `json:"id"`
	WebhookID   string     `json:"webhook_id"`
	Event       string     `json:"event"`
	Attempt     int        `json:"attempt"`
	Status      string     `json:"status"`
	HTTPStatus  *int       `json:"http_status,omitempty"`
	Response    string     `json:"response,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// postEvent handles POST /v1/webhooks/:webhook_id/events
func postEvent(d *dispatcher.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookID := chi.URLParam(r, "webhook_id")
		if webhookID == "" {
			http.Error(w, "webhook_id is required", http.StatusBadRequest)
			return
		}

		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if req.Event == "" {
			http.Error(w, "event is required", http.StatusBadRequest)
			return
		}
		if len(req.Payload) == 0 || !json.Valid(req.Payload) {
			http.Error(w, "payload must be valid JSON", http.StatusBadRequest)
			return
		}

		jobID, err := d.Enqueue(r.Context(), webhookID, req.Event, req.Payload, req.Headers)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// 202 Accepted: delivery happens asynchronously
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(eventResponse{JobID: jobID, WebhookID: webhookID}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// postTest handles POST /v1/webhooks/:webhook_id/test
func postTest(d *dispatcher.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookID := chi.URLParam(r, "webhook_id")
		if webhookID == "" {
			http.Error(w, "webhook_id is required", http.StatusBadRequest)
			return
		}
		event := r.URL.Query().Get("event")

		result, err := d.TestWebhook(r.Context(), webhookID, event)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getDeliveries handles GET /v1/webhooks/:webhook_id/deliveries
func getDeliveries(store webhook.Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookID := chi.URLParam(r, "webhook_id")

		filter := webhook.Filter{WebhookID: webhookID, Limit: 100}
		if status := r.URL.Query().Get("status"); status != "" {
			filter.Status = webhook.NewStatus(status)
		}

		deliveries, err := store.QueryDeliveries(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		responses := make([]deliveryResponse, 0, len(deliveries))
		for _, del := range deliveries {
			responses = append(responses, deliveryResponse{
				ID:          del.ID,
				WebhookID:   del.WebhookID,
				Event:       del.Event,
				Attempt:     del.Attempt,
				Status:      del.Status.String(),
				HTTPStatus:  del.HTTPStatus,
				Response:    del.Response,
				Error:       del.Error,
				CreatedAt:   del.CreatedAt,
				DeliveredAt: del.DeliveredAt,
				CompletedAt: del.CompletedAt,
				NextRetryAt: del.NextRetryAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(responses); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getStatus handles GET /v1/engine/status
func getStatus(d *dispatcher.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counts, err := d.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(counts); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// postPause handles POST /v1/engine/pause
func postPause(d *dispatcher.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := d.Pause(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// postResume handles POST /v1/engine/resume
func postResume(d *dispatcher.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := d.Resume(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// postRetry handles POST /v1/deliveries/retry
func postRetry(d *dispatcher.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req retryRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
				return
			}
		}

		count, err := d.RetryFailedDeliveries(r.Context(), req.WebhookID, time.Duration(req.MaxAgeSec)*time.Second)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(countResponse{Count: count}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// deleteDeliveries handles DELETE /v1/deliveries?max_age_sec=N
func deleteDeliveries(d *dispatcher.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var maxAge time.Duration
		if v := r.URL.Query().Get("max_age_sec"); v != "" {
			var secs int
			if _, err := fmt.Sscanf(v, "%d", &secs); err != nil {
				http.Error(w, "max_age_sec must be an integer", http.StatusBadRequest)
				return
			}
			maxAge = time.Duration(secs) * time.Second
		}
		if maxAge <= 0 {
			http.Error(w, "max_age_sec is required", http.StatusBadRequest)
			return
		}

		count, err := d.CleanupOldDeliveries(r.Context(), maxAge)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(countResponse{Count: count}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
