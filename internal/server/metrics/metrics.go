// Package metrics exposes the auth core's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthMetrics counts the security-relevant events of the token lifecycle.
type AuthMetrics struct {
	Registrations prometheus.Counter
	Logins        *prometheus.CounterVec // label result: success|failure
	Rotations     prometheus.Counter
	ReuseDetected prometheus.Counter
	Logouts       prometheus.Counter
}

// New registers the auth counters on reg and returns them.
func New(reg prometheus.Registerer) *AuthMetrics {
	factory := promauto.With(reg)
	return &AuthMetrics{
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Completed user registrations.",
		}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Password login attempts by result.",
		}, []string{"result"}),
		Rotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_refresh_rotations_total",
			Help: "Successful refresh token rotations.",
		}),
		ReuseDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_refresh_reuse_detected_total",
			Help: "Refresh token reuse detections (each burns a token family).",
		}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_logouts_total",
			Help: "Explicit logouts.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
