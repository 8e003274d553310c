package telemetry

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry tracks upstream call and pipeline outcomes. A nil *Telemetry is
// valid and records nothing, so components can run without metrics in tests.
type Telemetry struct {
	logger *log.Logger

	searchTotal    *prometheus.CounterVec
	agentRunsTotal *prometheus.CounterVec
	pathBuilds     *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	streamEvents   prometheus.Counter
}

// New creates a telemetry instance and registers its collectors
func New(reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyflow_searches_total",
			Help: "Upstream search calls by outcome.",
		}, []string{"outcome"}),
		agentRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyflow_agent_runs_total",
			Help: "Upstream agent runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		pathBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyflow_path_builds_total",
			Help: "Learning-path builds by outcome.",
		}, []string{"outcome"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "studyflow_path_build_seconds",
			Help:    "Wall time of learning-path builds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		streamEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyflow_stream_events_total",
			Help: "Agent stream events consumed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(t.searchTotal, t.agentRunsTotal, t.pathBuilds, t.buildDuration, t.streamEvents)
	}
	return t
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordSearch records one upstream search call
func (t *Telemetry) RecordSearch(err error) {
	if t == nil {
		return
	}
	t.searchTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordAgentRun records one agent run of the given kind (blocking, stream)
func (t *Telemetry) RecordAgentRun(kind string, duration time.Duration, err error) {
	if t == nil {
		return
	}
	t.agentRunsTotal.WithLabelValues(kind, outcome(err)).Inc()
	if err != nil {
		t.logger.Printf("agent run (%s) failed after %v: %v", kind, duration, err)
	}
}

// RecordPathBuild records one learning-path build
func (t *Telemetry) RecordPathBuild(duration time.Duration, err error) {
	if t == nil {
		return
	}
	t.pathBuilds.WithLabelValues(outcome(err)).Inc()
	t.buildDuration.Observe(duration.Seconds())
}

// RecordStreamEvent counts one consumed agent stream event
func (t *Telemetry) RecordStreamEvent() {
	if t == nil {
		return
	}
	t.streamEvents.Inc()
}
