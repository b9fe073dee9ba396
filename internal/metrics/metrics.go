// Package metrics holds the Prometheus collectors for the confirmation engine.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "twofa"

// Recorder groups every collector the services report to.
type Recorder struct {
	codesIssued     *prometheus.CounterVec
	deliveryFailed  *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	recoveries      *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gatherer        prometheus.Gatherer
}

// NewRecorder registers all collectors on reg.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_issued_total",
			Help:      "Confirmation codes stored and handed to a delivery channel.",
		}, []string{"channel"}),
		deliveryFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Messages a delivery channel failed to send.",
		}, []string{"channel"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_verifications_total",
			Help:      "Confirmation code verifications by result.",
		}, []string{"result"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_recoveries_total",
			Help:      "Identity recovery attempts by outcome.",
		}, []string{"outcome"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Multisig backend calls by operation and result.",
		}, []string{"op", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(r.codesIssued, r.deliveryFailed, r.verifications, r.recoveries, r.backendCalls, r.requestDuration)
	return r
}

func (r *Recorder) CodeIssued(channel string) {
	if r != nil {
		r.codesIssued.WithLabelValues(channel).Inc()
	}
}

func (r *Recorder) DeliveryFailed(channel string) {
	if r != nil {
		r.deliveryFailed.WithLabelValues(channel).Inc()
	}
}

func (r *Recorder) Verification(result string) {
	if r != nil {
		r.verifications.WithLabelValues(result).Inc()
	}
}

func (r *Recorder) Recovery(outcome string) {
	if r != nil {
		r.recoveries.WithLabelValues(outcome).Inc()
	}
}

func (r *Recorder) BackendCall(op string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.backendCalls.WithLabelValues(op, result).Inc()
}

func (r *Recorder) ObserveRequest(method, route string, status int, d time.Duration) {
	if r != nil {
		r.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
