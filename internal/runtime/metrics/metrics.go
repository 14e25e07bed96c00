// Package metrics exposes the pipeline's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reportflow"

// Publish results used as the "result" label.
const (
	ResultPublished = "published"
	ResultFailed    = "failed"
	ResultTimeout   = "timeout"
	ResultRejected  = "rejected"
	ResultPanic     = "panic"
)

// Metrics groups the collectors for the broker, emitter and orchestrator.
type Metrics struct {
	mu         sync.Mutex
	registered bool
	registerer prometheus.Registerer

	published       *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	fallback        *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	executions      *prometheus.CounterVec
	execDuration    *prometheus.HistogramVec
	responses       *prometheus.CounterVec
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(subsystem, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// New creates the collectors. A nil registerer means prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	latency := []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	return &Metrics{
		registerer:      registerer,
		published:       newCounterVec("broker", "records_total", "Records handed to the broker, by topic and result", []string{"topic", "result"}),
		publishDuration: newHistogramVec("broker", "publish_duration_seconds", "Time from publish call to broker acknowledgement", latency, []string{"topic"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "in_flight",
			Help:      "Publishes awaiting broker acknowledgement",
		}),
		fallback: newCounterVec("emitter", "fallback_total", "Records written to the local fallback sink", []string{"kind", "reason"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "emitter",
			Name:      "queue_depth",
			Help:      "Records waiting in each emitter shard",
		}, []string{"shard"}),
		executions:   newCounterVec("pipeline", "executions_total", "Orchestrated executions by operation and status code", []string{"operation", "code"}),
		execDuration: newHistogramVec("pipeline", "execution_duration_seconds", "Operation execution time", latency, []string{"operation"}),
		responses:    newCounterVec("http", "responses_total", "HTTP responses by route and status code", []string{"route", "code"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.published,
		m.publishDuration,
		m.inFlight,
		m.fallback,
		m.queueDepth,
		m.executions,
		m.execDuration,
		m.responses,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// ObservePublish records one publish attempt.
func (m *Metrics) ObservePublish(topic, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic, result).Inc()
	if result == ResultPublished {
		m.publishDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
	}
}

// InFlightAdd moves the in-flight gauge by delta.
func (m *Metrics) InFlightAdd(delta float64) {
	if m == nil {
		return
	}
	m.inFlight.Add(delta)
}

// RecordFallback counts a record diverted to the fallback sink.
func (m *Metrics) RecordFallback(kind, reason string) {
	if m == nil {
		return
	}
	m.fallback.WithLabelValues(kind, reason).Inc()
}

// SetQueueDepth reports the backlog of one emitter shard.
func (m *Metrics) SetQueueDepth(shard, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(depth))
}

// ObserveExecution records one orchestrated execution.
func (m *Metrics) ObserveExecution(operation string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(operation, strconv.Itoa(code)).Inc()
	m.execDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveResponse records one HTTP response.
func (m *Metrics) ObserveResponse(route string, code int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
