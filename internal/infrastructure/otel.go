package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "shelfstats"
	ServiceVersion = "v1.0.0"
	MeterName      = "shelfstats"
)

// OTelProviders holds the OpenTelemetry providers and the domain instruments
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Metrics        *Metrics
	Logger         *slog.Logger
}

// Metrics bundles the instruments recorded by the application
type Metrics struct {
	TablesLoaded       metric.Int64Counter
	EnrichmentRuns     metric.Int64Counter
	EnrichmentFetches  metric.Int64Counter
	FetchDuration      metric.Float64Histogram
	InsightsCacheHits  metric.Int64Counter
	InsightsCacheMiss  metric.Int64Counter
}

// InitializeOTel sets up metrics (Prometheus exporter) and, in development,
// stdout tracing.
func InitializeOTel(logger *slog.Logger, development bool) (*OTelProviders, error) {
	// Built standalone rather than merged with resource.Default(), whose
	// schema URL lags the semconv package and makes Merge fail.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
	)

	providers := &OTelProviders{Logger: logger}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	providers.MeterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(providers.MeterProvider)
	providers.Meter = providers.MeterProvider.Meter(MeterName)
	providers.PrometheusHTTP = promhttp.Handler()

	if development {
		traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		providers.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(traceExporter),
		)
		otel.SetTracerProvider(providers.TracerProvider)
		providers.Tracer = providers.TracerProvider.Tracer(MeterName)
	} else {
		providers.Tracer = otel.Tracer(MeterName)
	}

	metrics, err := newMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	providers.Metrics = metrics

	logger.Info("observability initialized",
		slog.Bool("tracing", development),
		slog.String("metric_exporter", "prometheus"))

	return providers, nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.TablesLoaded, err = meter.Int64Counter("shelfstats.tables.loaded",
		metric.WithDescription("Number of library tables loaded")); err != nil {
		return nil, err
	}
	if m.EnrichmentRuns, err = meter.Int64Counter("shelfstats.enrichment.runs",
		metric.WithDescription("Number of enrichment runs started")); err != nil {
		return nil, err
	}
	if m.EnrichmentFetches, err = meter.Int64Counter("shelfstats.enrichment.fetches",
		metric.WithDescription("Genre fetches by outcome")); err != nil {
		return nil, err
	}
	if m.FetchDuration, err = meter.Float64Histogram("shelfstats.enrichment.fetch_duration",
		metric.WithDescription("Genre fetch duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.InsightsCacheHits, err = meter.Int64Counter("shelfstats.insights.cache_hits",
		metric.WithDescription("Insights served from the fingerprint cache")); err != nil {
		return nil, err
	}
	if m.InsightsCacheMiss, err = meter.Int64Counter("shelfstats.insights.cache_misses",
		metric.WithDescription("Insights recomputed after a fingerprint change")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordFetch records one genre fetch outcome ("found", "not_found", "failed")
func (m *Metrics) RecordFetch(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.EnrichmentFetches.Add(ctx, 1, attrs)
	m.FetchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down tracer provider: %w", err)
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down meter provider: %w", err)
		}
	}
	return nil
}
