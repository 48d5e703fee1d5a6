package metrics_test

import (
	"context"
	"testing"

	"github.com/marcelsud/webhook-outbox/metrics"
	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(ctx)

	recorder, err := metrics.NewRecorder(provider.Meter("test"))
	require.NoError(t, err)

	recorder.OnJobEvent(webhook.JobEvent{Type: webhook.JobEnqueued, WebhookID: "wh-1"})
	recorder.OnJobEvent(webhook.JobEvent{Type: webhook.JobDelivered, WebhookID: "wh-1"})
	recorder.OnJobEvent(webhook.JobEvent{Type: webhook.JobDeliveryFailed, WebhookID: "wh-1"})
	recorder.OnJobEvent(webhook.JobEvent{Type: webhook.JobDeliveryFailed, WebhookID: "wh-1"})
	recorder.OnJobEvent(webhook.JobEvent{Type: webhook.JobRetryScheduled, WebhookID: "wh-1"})
	// Started events carry no counter
	recorder.OnJobEvent(webhook.JobEvent{Type: webhook.JobStarted, WebhookID: "wh-1"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	got := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			got[m.Name] = total
		}
	}

	assert.Equal(t, int64(1), got["webhook.jobs.enqueued"])
	assert.Equal(t, int64(1), got["webhook.deliveries.delivered"])
	assert.Equal(t, int64(2), got["webhook.deliveries.failed"])
	assert.Equal(t, int64(1), got["webhook.deliveries.retried"])
}
