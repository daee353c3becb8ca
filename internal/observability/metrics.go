package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	configFaults    *prometheus.CounterVec
	policyReloads   *prometheus.CounterVec
	auditWrites     *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agromart_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agromart_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agromart_authz_decisions_total",
		Help: "Authorization decisions partitioned by requirement kind and outcome.",
	}, []string{"kind", "outcome"})
	faults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agromart_authz_config_faults_total",
		Help: "Requests denied because the policy could not evaluate the requirement.",
	}, []string{"permission"})
	reloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agromart_policy_reloads_total",
		Help: "Policy reload attempts partitioned by result.",
	}, []string{"result"})
	audits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agromart_audit_writes_total",
		Help: "Audit entry writes partitioned by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, decisions, faults, reloads, audits)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisions:       decisions,
		configFaults:    faults,
		policyReloads:   reloads,
		auditWrites:     audits,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveDecision counts an authorization outcome: allow, deny, unauthenticated or fault.
func (m *Metrics) ObserveDecision(kind, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind, outcome).Inc()
}

// ObserveConfigFault counts a request denied by a policy misconfiguration.
func (m *Metrics) ObserveConfigFault(permission string) {
	if m == nil {
		return
	}
	m.configFaults.WithLabelValues(permission).Inc()
}

// ObservePolicyReload counts a reload attempt.
func (m *Metrics) ObservePolicyReload(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.policyReloads.WithLabelValues(result).Inc()
}

// ObserveAuditWrite counts an audit append: stored, failed, queued or dropped.
func (m *Metrics) ObserveAuditWrite(result string) {
	if m == nil {
		return
	}
	m.auditWrites.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
