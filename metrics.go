package homeai

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the client. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	logins       *prometheus.CounterVec
	polls        *prometheus.CounterVec
	pollAttempts prometheus.Histogram
}

// NewMetrics creates the client collectors and registers them with reg.
// Pass nil to create unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homeai_client",
			Name:      "requests_total",
			Help:      "API requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homeai_client",
			Name:      "request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homeai_client",
			Name:      "logins_total",
			Help:      "Login exchanges by result.",
		}, []string{"result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homeai_client",
			Name:      "polls_total",
			Help:      "Finished polling sequences by outcome.",
		}, []string{"outcome"}),
		pollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "homeai_client",
			Name:      "poll_attempts",
			Help:      "Status fetches per polling sequence.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.logins, m.polls, m.pollAttempts)
	}
	return m
}

func (m *Metrics) observeRequest(method, route, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, code).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeLogin(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) observePoll(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome).Inc()
	m.pollAttempts.Observe(float64(attempts))
}
