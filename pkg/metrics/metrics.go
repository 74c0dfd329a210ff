package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Index metrics
	RecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_records_total",
			Help: "Total number of indexed records by storage",
		},
		[]string{"storage"},
	)

	RecordsByType = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_records_by_type",
			Help: "Total number of indexed records by record type",
		},
		[]string{"record_type"},
	)

	TemplatesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_templates_total",
			Help: "Total number of indexed templates",
		},
	)

	CreatorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_creators_total",
			Help: "Total number of indexed creators",
		},
	)

	// Sync metrics
	SyncCursorBlock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_sync_cursor_block",
			Help: "Latest indexed blockchain block",
		},
	)

	GatewayHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_gateway_height",
			Help: "Last observed blockchain gateway height",
		},
	)

	SyncPassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_sync_pass_duration_seconds",
			Help:    "Sync pass duration in seconds by loop",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"loop"},
	)

	SyncRecordsIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_records_indexed_total",
			Help: "Records indexed by sync loops by source",
		},
		[]string{"source"},
	)

	SyncRecordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_records_skipped_total",
			Help: "Records skipped during sync by reason",
		},
		[]string{"source", "reason"},
	)

	SyncPassErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_pass_errors_total",
			Help: "Sync pass failures by loop",
		},
		[]string{"loop"},
	)

	// Publish metrics
	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_publish_total",
			Help: "Publish attempts by destination and status",
		},
		[]string{"destination", "status"},
	)

	// Job metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_jobs_total",
			Help: "Tracked jobs by status",
		},
		[]string{"status"},
	)

	// Resource governor metrics
	HTTPClientRecycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_http_client_recycles_total",
			Help: "Transport recycles by named client",
		},
		[]string{"client"},
	)

	BufferPoolGets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_buffer_pool_gets_total",
			Help: "Pooled response buffers handed out",
		},
	)

	BufferPoolPuts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_buffer_pool_puts_total",
			Help: "Pooled response buffers returned",
		},
	)

	// Query metrics
	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_query_duration_seconds",
			Help:    "Query engine execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(RecordsByType)
	prometheus.MustRegister(TemplatesTotal)
	prometheus.MustRegister(CreatorsTotal)
	prometheus.MustRegister(SyncCursorBlock)
	prometheus.MustRegister(GatewayHeight)
	prometheus.MustRegister(SyncPassDuration)
	prometheus.MustRegister(SyncRecordsIndexed)
	prometheus.MustRegister(SyncRecordsSkipped)
	prometheus.MustRegister(SyncPassErrors)
	prometheus.MustRegister(PublishTotal)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(HTTPClientRecycles)
	prometheus.MustRegister(BufferPoolGets)
	prometheus.MustRegister(BufferPoolPuts)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration and reports it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds into a histogram observer.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed seconds into one labeled series
// of a histogram vec.
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labels ...string) {
	vec.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
