package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ResultsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_results_finalized_total",
			Help: "Finalized attempts by result status",
		},
		[]string{"status"},
	)

	FinalizeRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_finalize_rejected_total",
			Help: "Finalize calls that did not store a result, by reason",
		},
		[]string{"reason"},
	)

	AnswerAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_answer_anomalies_total",
			Help: "Answer entries dropped or degraded during finalization",
		},
		[]string{"kind"},
	)

	RankingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_ranking_runs_total",
			Help: "Rank recomputations by outcome",
		},
		[]string{"outcome"},
	)

	RankingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exam_ranking_duration_seconds",
			Help:    "Duration of one rank recomputation including lock wait",
			Buckets: prometheus.DefBuckets,
		},
	)

	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_websocket_clients",
			Help: "Websocket connections held by this instance",
		},
	)

	WebsocketDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_websocket_dropped_messages_total",
			Help: "Messages dropped because a client send buffer was full",
		},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call twice.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			ResultsFinalized,
			FinalizeRejected,
			AnswerAnomalies,
			RankingRuns,
			RankingDuration,
			WebsocketClients,
			WebsocketDropped,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
