package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	recalcSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recalc_sweep_duration_seconds",
			Help:    "Duration of a full schedule recalculation sweep in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	schedulesEvaluated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedules_evaluated_total",
			Help: "Total (equipment, cycle) pairs evaluated by the recalculation job.",
		},
	)
	scheduleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_transitions_total",
			Help: "Total schedule status transitions persisted, by resulting status.",
		},
		[]string{"status"},
	)
	alertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_emitted_total",
			Help: "Total alert records created, by severity.",
		},
		[]string{"severity"},
	)
	alertsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_suppressed_total",
			Help: "Total alert inserts suppressed by the cooldown window.",
		},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	registryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_request_failures_total",
			Help: "Total equipment registry request failures.",
		},
	)
	registrySuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_request_success_total",
			Help: "Total equipment registry request successes.",
		},
	)
	registryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "registry_request_latency_seconds",
			Help:    "Equipment registry request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency, kafkaConsumerLag,
		recalcSweepDuration, schedulesEvaluated, scheduleTransitions,
		alertsEmitted, alertsSuppressed,
		influxWriteFailures, registryFailures, registrySuccess, registryLatency,
		asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func ObserveRecalcSweep(d time.Duration) {
	recalcSweepDuration.Observe(d.Seconds())
}

func IncSchedulesEvaluated(n int) {
	schedulesEvaluated.Add(float64(n))
}

func IncScheduleTransition(status string) {
	scheduleTransitions.WithLabelValues(status).Inc()
}

func IncAlertEmitted(severity string) {
	alertsEmitted.WithLabelValues(severity).Inc()
}

func IncAlertSuppressed() {
	alertsSuppressed.Inc()
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func IncRegistryFailure() {
	registryFailures.Inc()
}

func IncRegistrySuccess() {
	registrySuccess.Inc()
}

func ObserveRegistryLatency(d time.Duration) {
	registryLatency.Observe(d.Seconds())
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
