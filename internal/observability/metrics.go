package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Session validation outcomes
const (
	OutcomeValid           = "valid"
	OutcomeRefreshed       = "refreshed"
	OutcomeUnauthenticated = "unauthenticated"
)

// Tenant resolution outcomes
const (
	OutcomeResolved       = "resolved"
	OutcomeNoOrganization = "no_organization"
	OutcomeFailed         = "failed"
)

// Metrics collects session and tenant resolution metrics.
type Metrics interface {
	SessionValidated(outcome string)
	RefreshAttempted(success bool)
	ContextResolved(source, outcome string)
	ProviderCall(operation string, duration time.Duration, err error)
}

// PrometheusMetrics implements Metrics on Prometheus collectors.
type PrometheusMetrics struct {
	validations   *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	providerCalls *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them on registerer.
func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocercas_session_validations_total",
		Help: "Session validations by outcome.",
	}, []string{"outcome"})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocercas_session_refresh_total",
		Help: "Refresh credential exchanges by result.",
	}, []string{"result"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocercas_tenant_resolutions_total",
		Help: "Tenant resolutions by strategy and outcome.",
	}, []string{"source", "outcome"})
	providerCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geocercas_provider_call_duration_seconds",
		Help:    "Latency of outbound identity provider and RPC calls.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 12},
	}, []string{"operation", "result"})

	registerer.MustRegister(validations, refreshes, resolutions, providerCalls)

	return &PrometheusMetrics{
		validations:   validations,
		refreshes:     refreshes,
		resolutions:   resolutions,
		providerCalls: providerCalls,
	}
}

func (m *PrometheusMetrics) SessionValidated(outcome string) {
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RefreshAttempted(success bool) {
	m.refreshes.WithLabelValues(resultLabel(success)).Inc()
}

func (m *PrometheusMetrics) ContextResolved(source, outcome string) {
	m.resolutions.WithLabelValues(source, outcome).Inc()
}

func (m *PrometheusMetrics) ProviderCall(operation string, duration time.Duration, err error) {
	m.providerCalls.WithLabelValues(operation, resultLabel(err == nil)).Observe(duration.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) SessionValidated(string)                   {}
func (NopMetrics) RefreshAttempted(bool)                     {}
func (NopMetrics) ContextResolved(string, string)            {}
func (NopMetrics) ProviderCall(string, time.Duration, error) {}
