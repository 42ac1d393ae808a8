package management

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds LDK's own Prometheus collectors, mirroring the teacher's
// pkg/metrics package: a dedicated registry (not the global default) so
// tests can spin up isolated instances.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ldk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled, by service and status.",
		},
		[]string{"service", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ldk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests, by service.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"service"},
	)

	providerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ldk",
			Subsystem: "orchestrator",
			Name:      "provider_status",
			Help:      "Lifecycle status of providers (one-hot by status label).",
		},
		[]string{"provider", "status"},
	)

	functionInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ldk",
			Subsystem: "compute",
			Name:      "invocations_total",
			Help:      "Total function invocations, by function and outcome.",
		},
		[]string{"function", "outcome"},
	)
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, providerStatus, functionInvocations)
}

// ObserveRequest records one completed HTTP request for a service.
func ObserveRequest(service string, status int, seconds float64) {
	httpRequests.WithLabelValues(service, statusLabel(status)).Inc()
	httpDuration.WithLabelValues(service).Observe(seconds)
}

// SetProviderStatus records the current one-hot lifecycle status of a
// provider for gauge-based dashboards.
func SetProviderStatus(provider, status string, statuses []string) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		providerStatus.WithLabelValues(provider, s).Set(v)
	}
}

// ObserveInvocation records one function invocation outcome.
func ObserveInvocation(function, outcome string) {
	functionInvocations.WithLabelValues(function, outcome).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Handler exposes the registry in the standard Prometheus text exposition
// format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
