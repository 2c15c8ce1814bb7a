package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/scanpipe/internal/fanout"
	"github.com/nao1215/scanpipe/internal/model"
)

const namespace = "scanpipe"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Metrics holds the collectors of one process. Each instance owns its
// registry, so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
	stages        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	items         *prometheus.CounterVec
	itemDuration  prometheus.Histogram
	inflightItems prometheus.Gauge
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by technology and outcome.",
		}, []string{"technology", "outcome"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"technology"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Pipeline runs currently in flight.",
		}),
		stages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_executions_total",
			Help:      "Stage executions by technology, stage and outcome.",
		}, []string{"technology", "stage", "outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of stage executions.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"technology", "stage"}),
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_items_total",
			Help:      "Fanned-out items by outcome.",
		}, []string{"outcome"}),
		itemDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_item_duration_seconds",
			Help:      "Wall time of one fanned-out item.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16),
		}),
		inflightItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fanout_items_in_flight",
			Help:      "Fanned-out items currently running.",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RunStarted counts a run as active.
func (m *Metrics) RunStarted(model.Technology) {
	m.activeRuns.Inc()
}

// RunFinished records the outcome of a run started with RunStarted.
func (m *Metrics) RunFinished(technology model.Technology, elapsed time.Duration, err error) {
	m.activeRuns.Dec()
	m.runs.WithLabelValues(string(technology), outcome(err)).Inc()
	m.runDuration.WithLabelValues(string(technology)).Observe(elapsed.Seconds())
}

// ObserveStage implements pipeline.Observer.
func (m *Metrics) ObserveStage(technology model.Technology, stage string, elapsed time.Duration, err error) {
	m.stages.WithLabelValues(string(technology), stage, outcome(err)).Inc()
	m.stageDuration.WithLabelValues(string(technology), stage).Observe(elapsed.Seconds())
}

// FanoutHooks returns hooks that track fanned-out items.
func (m *Metrics) FanoutHooks() fanout.Hooks {
	return fanout.Hooks{
		OnStart: func(string) {
			m.inflightItems.Inc()
		},
		OnDone: func(_ string, elapsed time.Duration, err error) {
			m.inflightItems.Dec()
			m.items.WithLabelValues(outcome(err)).Inc()
			m.itemDuration.Observe(elapsed.Seconds())
		},
	}
}

// PoolStats is what the pool gauges read. *fanout.Pool implements it.
type PoolStats interface {
	Queued() int
	Running() int
}

// ObservePool exposes the queue depth and busy workers of pool.
func (m *Metrics) ObservePool(pool PoolStats) {
	factory := promauto.With(m.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_queued_tasks",
		Help:      "Tasks waiting in the admission queue.",
	}, func() float64 { return float64(pool.Queued()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_running_tasks",
		Help:      "Workers currently running a task.",
	}, func() float64 { return float64(pool.Running()) })
}
