// Package metrics exposes Prometheus collectors for cardledger and a small
// sliding-window anomaly detector for login failures and bulk exports.
//
// All Recorder methods are safe on a nil receiver so components can take an
// optional *Recorder without guarding every call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cardledger"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder owns a private registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadedFiles   *prometheus.CounterVec
	exports         *prometheus.CounterVec
	transitions     *prometheus.CounterVec

	alerts *alertWindow
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithAlertFunc installs a callback invoked when login failures or exports
// exceed their threshold inside the sliding window.
func WithAlertFunc(fn AlertFunc) Option {
	return func(r *Recorder) {
		r.alerts = newAlertWindow(fn)
	}
}

// New creates a Recorder with its collectors registered.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Requests sent to the statement backend by operation and outcome.",
		}, []string{"operation", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of requests sent to the statement backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		uploadedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_files_total",
			Help:      "Files reported by the backend after upload, by partition.",
		}, []string{"partition"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "History exports by format and outcome.",
		}, []string{"format", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by kind.",
		}, []string{"kind"}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests,
		r.requestDuration,
		r.uploadedFiles,
		r.exports,
		r.transitions,
	)
	return r
}

// Registry returns the private registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRequest records one backend call.
func (r *Recorder) ObserveRequest(operation string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(operation, outcome(err)).Inc()
	r.requestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddUploaded records the partition sizes of a committed upload result.
func (r *Recorder) AddUploaded(processed, skipped int) {
	if r == nil {
		return
	}
	r.uploadedFiles.WithLabelValues("processed").Add(float64(processed))
	r.uploadedFiles.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveExport records one export attempt.
func (r *Recorder) ObserveExport(format string, err error) {
	if r == nil {
		return
	}
	r.exports.WithLabelValues(format, outcome(err)).Inc()
	if err == nil {
		r.alerts.recordExport()
	}
}

// ObserveTransition records a session transition such as "login_success".
func (r *Recorder) ObserveTransition(kind string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(kind).Inc()
}

// ObserveLoginFailure feeds the login failure spike detector.
func (r *Recorder) ObserveLoginFailure() {
	if r == nil {
		return
	}
	r.alerts.recordLoginFailure()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
