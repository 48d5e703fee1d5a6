package webhook

import "time"

/* Job lifecycle observation is explicit and typed: observers are handed to the
 * dispatcher at construction instead of registering on a process-wide emitter
 */

// JobEventType names a dispatcher lifecycle event.
type JobEventType string

const (
	JobEnqueued       JobEventType = "enqueued"
	JobStarted        JobEventType = "started"
	JobDelivered      JobEventType = "delivered"
	JobDeliveryFailed JobEventType = "delivery_failed"
	JobRetryScheduled JobEventType = "retry_scheduled"
)

// JobEvent describes one lifecycle transition of a delivery job.
type JobEvent struct {
	Type       JobEventType
	WebhookID  string
	DeliveryID string
	Event      string
	Attempt    int
	HTTPStatus *int
	Error      string
	At         time.Time
}

// Observer receives dispatcher lifecycle events.
type Observer interface {
	/* OnJobEvent must not block; slow consumers should buffer internally
	 * Events are delivered from worker goroutines
	 */
	OnJobEvent(event JobEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(JobEvent)

// OnJobEvent implements Observer
func (f ObserverFunc) OnJobEvent(event JobEvent) { f(event) }
