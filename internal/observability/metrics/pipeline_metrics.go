package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeDeferred  = "deferred"
	OutcomeDiscarded = "discarded"
)

// Config carries the constant labels stamped on every pipeline metric.
type Config struct {
	ServiceName string
	Environment string
}

// PipelineMetrics captures event pipeline health signals.
type PipelineMetrics struct {
	eventsProcessed *prometheus.CounterVec
	eventsRelayed   prometheus.Counter
	appendConflicts prometheus.Counter
	passErrors      prometheus.Counter
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics registry using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "orgstream"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	eventsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "orgstream_denormalizer_events_total",
		Help:        "Denormalizer deliveries by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	eventsRelayed := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "orgstream_relay_events_total",
		Help:        "Outbox events handed to the message channel.",
		ConstLabels: constLabels,
	})
	appendConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "orgstream_append_conflicts_total",
		Help:        "Appends rejected because the stream tail moved.",
		ConstLabels: constLabels,
	})
	passErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "orgstream_denormalizer_pass_errors_total",
		Help:        "Denormalizer passes aborted by infrastructure errors.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		eventsProcessed,
		eventsRelayed,
		appendConflicts,
		passErrors,
	)

	return &PipelineMetrics{
		eventsProcessed: eventsProcessed,
		eventsRelayed:   eventsRelayed,
		appendConflicts: appendConflicts,
		passErrors:      passErrors,
	}
}

// IncEventProcessed increments the delivery counter for an outcome.
func (m *PipelineMetrics) IncEventProcessed(outcome string) {
	if m == nil || m.eventsProcessed == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(outcome).Inc()
}

// AddEventsRelayed increments the relay counter by count.
func (m *PipelineMetrics) AddEventsRelayed(count int) {
	if m == nil || m.eventsRelayed == nil || count <= 0 {
		return
	}
	m.eventsRelayed.Add(float64(count))
}

// IncAppendConflict increments the append conflict counter.
func (m *PipelineMetrics) IncAppendConflict() {
	if m == nil || m.appendConflicts == nil {
		return
	}
	m.appendConflicts.Inc()
}

// IncPassError increments the aborted pass counter.
func (m *PipelineMetrics) IncPassError() {
	if m == nil || m.passErrors == nil {
		return
	}
	m.passErrors.Inc()
}
