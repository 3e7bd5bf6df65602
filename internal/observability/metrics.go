package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	requestsTotal          *prometheus.CounterVec
	latencySeconds         *prometheus.HistogramVec
	errorsTotal            *prometheus.CounterVec
	attemptsStartedTotal   *prometheus.CounterVec
	attemptStartRetries    prometheus.Counter
	submissionsFinalized   *prometheus.CounterVec
	timeLimitExceededTotal prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the assessment API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_http_requests_total",
			Help: "Total number of assessment API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assessment_http_latency_seconds",
			Help:    "Latency distribution for assessment API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_http_errors_total",
			Help: "Total number of error responses returned by assessment endpoints.",
		}, []string{"method", "route", "status"})

		attemptsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_attempts_started_total",
			Help: "Attempts created, labelled by assessment kind.",
		}, []string{"kind"})

		attemptStartRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assessment_attempt_start_retries_total",
			Help: "Attempt starts retried after losing an attempt-number race.",
		})

		submissionsFinalized = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_submissions_finalized_total",
			Help: "Submissions finalized, labelled by resulting status.",
		}, []string{"status"})

		timeLimitExceededTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assessment_submissions_time_limit_exceeded_total",
			Help: "Submissions recorded after their time limit elapsed.",
		})

		prometheus.MustRegister(
			requestsTotal,
			latencySeconds,
			errorsTotal,
			attemptsStartedTotal,
			attemptStartRetries,
			submissionsFinalized,
			timeLimitExceededTotal,
		)
	})
}

// Requests exposes the request counter.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the request latency histogram.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// AttemptsStarted counts newly created attempts.
func AttemptsStarted() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsStartedTotal
}

// AttemptStartRetries counts attempt-number conflicts that were retried.
func AttemptStartRetries() prometheus.Counter {
	RegisterMetrics()
	return attemptStartRetries
}

// SubmissionsFinalized counts submit calls that finalized an attempt.
func SubmissionsFinalized() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsFinalized
}

// TimeLimitExceeded counts late submissions.
func TimeLimitExceeded() prometheus.Counter {
	RegisterMetrics()
	return timeLimitExceededTotal
}
