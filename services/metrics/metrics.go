// Package metrics holds the Prometheus collectors of the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socportal/jumuiya/core"
)

const namespace = "jumuiya"

// Outcome labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	Registrations prometheus.Counter
	Logins        *prometheus.CounterVec
	Engagement    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Accepted self-registrations.",
		}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Engagement: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engagement_total",
			Help:      "Likes, views, votes and event registrations by result.",
		}, []string{"action", "result"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordLogin counts a login attempt; err is the Authenticate outcome.
func (m *Metrics) RecordLogin(err error) {
	if err == nil {
		m.Logins.WithLabelValues(ResultSuccess).Inc()
		return
	}
	m.Logins.WithLabelValues(string(core.KindOf(err))).Inc()
}

// RecordEngagement counts an engagement action; the result is the error kind or success.
func (m *Metrics) RecordEngagement(action string, err error) {
	result := ResultSuccess
	if err != nil {
		result = string(core.KindOf(err))
	}
	m.Engagement.WithLabelValues(action, result).Inc()
}
