package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	pubsubPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_pubsub_publish_total",
			Help: "Total number of pub/sub bridge publishes by outcome.",
		},
		[]string{"outcome"},
	)
	scanResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_scan_results_total",
			Help: "Total number of virus scan verdicts by engine and status.",
		},
		[]string{"engine", "status"},
	)
	expiredReadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_expired_message_reads_total",
			Help: "Total number of expired messages redacted at read time.",
		},
	)
	sweepDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sweep_deleted_total",
			Help: "Total number of rows removed or re-queued by background sweeps.",
		},
		[]string{"sweep"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		pubsubPublishTotal,
		scanResultsTotal,
		expiredReadsTotal,
		sweepDeletedTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncPubSubPublish(outcome string) {
	pubsubPublishTotal.WithLabelValues(outcome).Inc()
}

func IncScanResult(engine, status string) {
	scanResultsTotal.WithLabelValues(engine, status).Inc()
}

func IncExpiredRead() {
	expiredReadsTotal.Inc()
}

func AddSweepDeleted(sweep string, count int64) {
	sweepDeletedTotal.WithLabelValues(sweep).Add(float64(count))
}
