package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)

	// Link Metrics
	LinksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_links_created_total",
			Help: "Total number of short links created",
		},
		[]string{"status"},
	)

	// ResolutionsTotal counts resolution attempts by outcome
	// (redirect, not_found, expired, password_required, invalid_password, error).
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_resolutions_total",
			Help: "Total number of short code resolutions by outcome",
		},
		[]string{"outcome"},
	)

	ClicksRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_clicks_recorded_total",
			Help: "Total number of click events persisted",
		},
	)

	AnalyticsReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortlink_analytics_report_duration_seconds",
			Help:    "Time spent building analytics reports",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"range"},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// System Metrics
	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "go_goroutines_count",
			Help: "Number of goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
		[]string{"type"},
	)
)

// OpenTelemetry instruments mirror the HTTP counters for the OTLP pipeline.
// They bind to the global MeterProvider, so they are no-ops until
// observability is set up.
var (
	meter = otel.Meter("github.com/fonsecaaso/shortlink/go-server")

	otelRequests, _    = meter.Int64Counter("http.server.requests", otelmetric.WithDescription("HTTP requests served"))
	otelDuration, _    = meter.Float64Histogram("http.server.duration", otelmetric.WithUnit("s"))
	otelInFlight, _    = meter.Int64UpDownCounter("http.server.active_requests")
	otelResolutions, _ = meter.Int64Counter("shortlink.resolutions", otelmetric.WithDescription("Resolutions by outcome"))
)

// StartSystemMetricsCollection samples runtime stats every 15s until ctx is done
func StartSystemMetricsCollection(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			collectSystemMetrics()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func collectSystemMetrics() {
	GoRoutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_alloc").Set(float64(m.HeapAlloc))
	MemoryUsage.WithLabelValues("heap_in_use").Set(float64(m.HeapInuse))
	MemoryUsage.WithLabelValues("stack_in_use").Set(float64(m.StackInuse))
}

func IncrementRequestsInFlight(ctx context.Context) {
	HTTPRequestsInFlight.Inc()
	otelInFlight.Add(ctx, 1)
}

func DecrementRequestsInFlight(ctx context.Context) {
	HTTPRequestsInFlight.Dec()
	otelInFlight.Add(ctx, -1)
}

// RecordHTTPMetrics records metrics for an HTTP request
func RecordHTTPMetrics(ctx context.Context, method, path, status string, duration time.Duration, requestSize, responseSize int64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	HTTPResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))

	attrs := otelmetric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.String("http.status_code", status),
	)
	otelRequests.Add(ctx, 1, attrs)
	otelDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordResolution counts one resolution outcome
func RecordResolution(ctx context.Context, outcome string) {
	ResolutionsTotal.WithLabelValues(outcome).Inc()
	otelResolutions.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}
