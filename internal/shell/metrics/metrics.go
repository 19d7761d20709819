// Package metrics exposes Prometheus collectors for deployments and callbacks.
//
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaunch"

// Deployment outcomes.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

// Callback outcomes.
const (
	CallbackDelivered = "delivered"
	CallbackFailed    = "failed"
	CallbackDropped   = "dropped"
	CallbackSkipped   = "skipped"
)

// Metrics holds every collector the service records to.
type Metrics struct {
	registry *prometheus.Registry

	deploymentsTotal   *prometheus.CounterVec
	deployDuration     prometheus.Histogram
	deploysInFlight    prometheus.Gauge
	stageDuration      *prometheus.HistogramVec
	stageFailures      *prometheus.CounterVec
	pruneReclaimed     prometheus.Counter
	callbacksTotal     *prometheus.CounterVec
	callbackQueueDepth prometheus.Gauge
	engineUp           prometheus.Gauge
	historyPruned      prometheus.Counter
}

// New creates the collectors on a private registry, together with the
// standard Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deploymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Deploy invocations by outcome.",
		}, []string{"result"}),
		deployDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deploy_duration_seconds",
			Help:      "Wall time of a whole deploy invocation.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		deploysInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deploys_in_flight",
			Help:      "Deploy invocations currently running.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deploy_stage_duration_seconds",
			Help:      "Wall time spent in each deploy stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploy_stage_failures_total",
			Help:      "Deploy failures by the stage that failed.",
		}, []string{"stage"}),
		pruneReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prune_reclaimed_bytes_total",
			Help:      "Bytes reclaimed by dangling image prunes.",
		}),
		callbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Callback notifications by outcome.",
		}, []string{"result"}),
		callbackQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "callback_queue_depth",
			Help:      "Callback payloads waiting for delivery.",
		}),
		engineUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_up",
			Help:      "Whether the last container engine ping succeeded.",
		}),
		historyPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_pruned_total",
			Help:      "Deployment history records removed by retention.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.deploymentsTotal,
		m.deployDuration,
		m.deploysInFlight,
		m.stageDuration,
		m.stageFailures,
		m.pruneReclaimed,
		m.callbacksTotal,
		m.callbackQueueDepth,
		m.engineUp,
		m.historyPruned,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// =============================================================================
// Deployments
// =============================================================================

// DeployStarted marks an invocation as running.
func (m *Metrics) DeployStarted() {
	if m == nil {
		return
	}
	m.deploysInFlight.Inc()
}

// DeployFinished records the outcome of an invocation started with DeployStarted.
func (m *Metrics) DeployFinished(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.deploysInFlight.Dec()
	m.deploymentsTotal.WithLabelValues(result).Inc()
	m.deployDuration.Observe(elapsed.Seconds())
}

// DeployRejected records an invocation turned away before it ran.
func (m *Metrics) DeployRejected() {
	if m == nil {
		return
	}
	m.deploymentsTotal.WithLabelValues(ResultRejected).Inc()
}

// StageCompleted records the time spent in a stage.
func (m *Metrics) StageCompleted(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// StageFailed records a deploy that failed in stage.
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

// PruneReclaimed adds reclaimed bytes from an image prune.
func (m *Metrics) PruneReclaimed(bytes uint64) {
	if m == nil {
		return
	}
	m.pruneReclaimed.Add(float64(bytes))
}

// =============================================================================
// Callbacks
// =============================================================================

// CallbackResult records a callback outcome.
func (m *Metrics) CallbackResult(result string) {
	if m == nil {
		return
	}
	m.callbacksTotal.WithLabelValues(result).Inc()
}

// CallbackQueueDepth sets the number of queued callbacks.
func (m *Metrics) CallbackQueueDepth(n int) {
	if m == nil {
		return
	}
	m.callbackQueueDepth.Set(float64(n))
}

// =============================================================================
// Background Workers
// =============================================================================

// EngineUp records the result of the latest engine ping.
func (m *Metrics) EngineUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.engineUp.Set(1)
		return
	}
	m.engineUp.Set(0)
}

// HistoryPruned counts history records removed by retention.
func (m *Metrics) HistoryPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.historyPruned.Add(float64(n))
}
