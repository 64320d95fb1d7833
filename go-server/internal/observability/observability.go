package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/config"
	"github.com/fonsecaaso/shortlink/go-server/internal/logger"
	"github.com/fonsecaaso/shortlink/go-server/internal/tracing"
)

const (
	spanBatchTimeout   = 5 * time.Second
	metricPushInterval = 30 * time.Second
)

// Observability holds the process logger and the OpenTelemetry providers.
type Observability struct {
	Logger *zap.Logger
	// PrometheusHandler serves the OpenTelemetry metrics; nil unless metrics export is enabled.
	PrometheusHandler http.Handler

	shutdowns []namedShutdown
	status    Status
}

// Status tracks which components are initialized
type Status struct {
	TracingEnabled bool
	MetricsEnabled bool
	LokiEnabled    bool
}

type namedShutdown struct {
	name string
	fn   func(context.Context) error
}

// Setup builds the logger, installs it as the zap global, and enables OTLP
// export when cfg.OTLPEndpoint is set.
func Setup(ctx context.Context, cfg *config.Config) (*Observability, error) {
	obs := &Observability{}

	transport := http.RoundTripper(nil)
	if cfg.LokiDebug {
		transport = logger.NewLokiLoggingTransport(nil)
	}
	log, logShutdown, err := logger.New(logger.Options{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LokiURL:     cfg.LokiURL,
		Transport:   transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	zap.ReplaceGlobals(log)
	obs.Logger = log
	obs.status.LokiEnabled = cfg.LokiURL != ""

	if cfg.OTLPEndpoint == "" {
		log.Info("OTLP endpoint not set, tracing and metrics export disabled")
		obs.shutdowns = append(obs.shutdowns, namedShutdown{"logger", logShutdown})
		return obs, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcessRuntimeName(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	endpoint, insecure := exporterEndpoint(cfg.OTLPEndpoint)
	client := &http.Client{Transport: tracing.NewLoggingTransport(log, nil)}

	tracerShutdown, err := initTracing(ctx, res, endpoint, insecure, client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	obs.shutdowns = append(obs.shutdowns, namedShutdown{"tracer", tracerShutdown})
	obs.status.TracingEnabled = true

	meterShutdown, promHandler, err := initMetrics(ctx, res, endpoint, insecure, client)
	if err != nil {
		// Metrics are optional
		log.Warn("Failed to initialize OTLP metrics", zap.Error(err))
	} else {
		obs.shutdowns = append(obs.shutdowns, namedShutdown{"meter", meterShutdown})
		obs.PrometheusHandler = promHandler
		obs.status.MetricsEnabled = true
	}

	// the logger goes last so the other shutdowns can still log
	obs.shutdowns = append(obs.shutdowns, namedShutdown{"logger", logShutdown})

	log.Info("OTLP export enabled",
		zap.String("endpoint", endpoint),
		zap.Bool("insecure", insecure),
		zap.Bool("metrics", obs.status.MetricsEnabled),
	)
	return obs, nil
}

// Shutdown flushes every component in setup order.
func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range o.shutdowns {
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s shutdown: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Observability) Status() Status {
	return o.status
}

func initTracing(ctx context.Context, res *resource.Resource, endpoint string, insecure bool, client *http.Client) (func(context.Context) error, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithHTTPClient(client),
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithMaxExportBatchSize(512),
		sdktrace.WithMaxQueueSize(2048),
		sdktrace.WithBatchTimeout(spanBatchTimeout),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return tracerProvider.Shutdown, nil
}

// initMetrics pushes to the collector and exposes the same instruments for
// scraping through a dedicated registry.
func initMetrics(ctx context.Context, res *resource.Resource, endpoint string, insecure bool, client *http.Client) (func(context.Context) error, http.Handler, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithHTTPClient(client),
	}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	otlpExporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	registry := prometheus.NewRegistry()
	prometheusExporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(otlpExporter, metric.WithInterval(metricPushInterval))),
		metric.WithReader(prometheusExporter),
	)
	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// exporterEndpoint reduces an OTLP endpoint to the host:port the exporters
// expect (they append /v1/traces and /v1/metrics themselves). Plain http and
// scheme-less endpoints are exported without TLS.
func exporterEndpoint(raw string) (hostPort string, insecure bool) {
	raw = strings.TrimSpace(strings.Trim(raw, `"`))

	if !strings.Contains(raw, "://") {
		if i := strings.Index(raw, "/"); i != -1 {
			raw = raw[:i]
		}
		return raw, true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.SplitN(strings.SplitN(raw, "://", 2)[1], "/", 2)[0], !strings.HasPrefix(raw, "https://")
	}
	return u.Host, u.Scheme != "https"
}
