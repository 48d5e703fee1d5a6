package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector

	// OTel meters and instruments
	meter            metric.Meter
	jobCountGauge    metric.Int64ObservableGauge
	statusCountGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(collector Collector) (*OTelExporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"webhook-outbox",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// Meter exposes the engine meter for synchronous instruments (see Recorder)
func (oe *OTelExporter) Meter() metric.Meter {
	return oe.meter
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	// Job count gauge (per queue lifecycle phase)
	oe.jobCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.jobs.count",
		metric.WithDescription("Number of delivery jobs per queue lifecycle phase"),
		metric.WithUnit("{jobs}"),
		metric.WithInt64Callback(oe.observeJobCounts),
	)
	if err != nil {
		return fmt.Errorf("creating job count gauge: %w", err)
	}

	// Delivery status gauge (per record status)
	oe.statusCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.deliveries.count",
		metric.WithDescription("Number of delivery records per status"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observeStatusCounts),
	)
	if err != nil {
		return fmt.Errorf("creating status count gauge: %w", err)
	}

	return nil
}

// observeJobCounts is a callback that reports queue phase counts
func (oe *OTelExporter) observeJobCounts(ctx context.Context, observer metric.Int64Observer) error {
	counts, err := oe.collector.GetJobCounts(ctx)
	if err != nil {
		return err
	}

	phases := map[string]int64{
		"queued":    counts.Queued,
		"delayed":   counts.Delayed,
		"active":    counts.Active,
		"completed": counts.Completed,
		"failed":    counts.Failed,
	}
	for phase, count := range phases {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("job.phase", phase),
		))
	}

	return nil
}

// observeStatusCounts is a callback that reports delivery record counts by status
func (oe *OTelExporter) observeStatusCounts(ctx context.Context, observer metric.Int64Observer) error {
	statusCounts, err := oe.collector.GetStatusCounts(ctx)
	if err != nil {
		return err
	}

	for status, count := range statusCounts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("delivery.status", status),
		))
	}

	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
