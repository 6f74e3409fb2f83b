package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Queue
	queueEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_queue_enqueued_total",
			Help: "Total number of entries added to the delivery queue.",
		},
		[]string{"channel"},
	)
	queueDeduplicated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_queue_deduplicated_total",
			Help: "Total number of enqueue calls answered with an existing entry.",
		},
		[]string{"channel"},
	)
	queueClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_queue_claimed_total",
			Help: "Total number of entries claimed by a worker.",
		},
	)
	queueRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_queue_recovered_total",
			Help: "Total number of stale claims returned to scheduled.",
		},
	)
	queueCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_queue_cancelled_total",
			Help: "Total number of scheduled entries cancelled.",
		},
	)
	queueStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_queue_entries",
			Help: "Current number of queue entries by status.",
		},
		[]string{"status"},
	)

	// Delivery
	deliverySent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_delivery_sent_total",
			Help: "Total number of messages delivered by a provider.",
		},
		[]string{"medium"},
	)
	deliveryFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_delivery_failed_total",
			Help: "Total number of entries that exhausted their attempts.",
		},
		[]string{"medium"},
	)
	deliveryRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_delivery_retries_total",
			Help: "Total number of failed attempts rescheduled for retry.",
		},
	)
	deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_delivery_duration_seconds",
			Help:    "Time spent in a single provider call (seconds).",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"medium"},
	)
	deliveryLag = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "message_delivery_lag_seconds",
			Help:    "Lag between an entry's sendAt and its delivery attempt (seconds).",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
	workerLoopErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_worker_loop_errors_total",
			Help: "Total number of worker iterations that failed outside a delivery.",
		},
	)

	// Cache
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of memo cache lookups.",
		},
		[]string{"backend", "result"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			queueEnqueued,
			queueDeduplicated,
			queueClaimed,
			queueRecovered,
			queueCancelled,
			queueStatus,

			deliverySent,
			deliveryFailed,
			deliveryRetries,
			deliveryDuration,
			deliveryLag,
			workerLoopErrors,

			cacheRequests,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	c := strconv.Itoa(code)
	httpRequests.WithLabelValues(method, route, c).Inc()
	httpDuration.WithLabelValues(method, route, c).Observe(d.Seconds())
}

// --- Queue ---
func IncEnqueued(channel string)     { queueEnqueued.WithLabelValues(channel).Inc() }
func IncDeduplicated(channel string) { queueDeduplicated.WithLabelValues(channel).Inc() }
func AddClaimed(n int)               { queueClaimed.Add(float64(n)) }
func AddRecovered(n int)             { queueRecovered.Add(float64(n)) }
func IncCancelled()                  { queueCancelled.Inc() }

// SetQueueStatusCounts replaces the per-status gauge with counts from a snapshot.
func SetQueueStatusCounts(counts map[string]int) {
	queueStatus.Reset()
	for status, n := range counts {
		queueStatus.WithLabelValues(status).Set(float64(n))
	}
}

// --- Delivery ---
func IncSent(medium string)   { deliverySent.WithLabelValues(medium).Inc() }
func IncFailed(medium string) { deliveryFailed.WithLabelValues(medium).Inc() }
func IncRetry()               { deliveryRetries.Inc() }
func IncLoopError()           { workerLoopErrors.Inc() }

func ObserveDelivery(medium string, d time.Duration) {
	deliveryDuration.WithLabelValues(medium).Observe(d.Seconds())
}

func ObserveLag(d time.Duration) {
	if d < 0 {
		d = 0
	}
	deliveryLag.Observe(d.Seconds())
}

// --- Cache ---
func IncCacheHit(backend string)  { cacheRequests.WithLabelValues(backend, "hit").Inc() }
func IncCacheMiss(backend string) { cacheRequests.WithLabelValues(backend, "miss").Inc() }
