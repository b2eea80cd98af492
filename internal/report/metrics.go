package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/v0xg/uiverify/internal/runner"
	"github.com/v0xg/uiverify/internal/scenario"
)

// Metrics collects run metrics on a private registry so a CI job can drop
// them into a node-exporter textfile directory.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	steps       *prometheus.CounterVec
	stepSeconds *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiverify",
			Subsystem: "scenario",
			Name:      "runs_total",
			Help:      "Scenario runs by outcome",
		}, []string{"scenario", "status"}),
		duration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uiverify",
			Subsystem: "scenario",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of the last run",
		}, []string{"scenario"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uiverify",
			Subsystem: "scenario",
			Name:      "last_success_timestamp_seconds",
			Help:      "Start time of the last passing run",
		}, []string{"scenario"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiverify",
			Subsystem: "step",
			Name:      "executions_total",
			Help:      "Executed steps by kind and outcome",
		}, []string{"kind", "outcome"}),
		stepSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uiverify",
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Step duration by kind",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
	}
}

func (m *Metrics) ScenarioStarted(string, int)             {}
func (m *Metrics) StepStarted(string, int, scenario.Step) {}

func (m *Metrics) StepFinished(_ string, rec runner.StepRecord) {
	outcome := "passed"
	if rec.Err != nil {
		outcome = "failed"
	}
	m.steps.WithLabelValues(rec.Kind, outcome).Inc()
	m.stepSeconds.WithLabelValues(rec.Kind).Observe(rec.Duration.Seconds())
}

func (m *Metrics) ScenarioFinished(res runner.Result) {
	m.runs.WithLabelValues(res.Scenario(), string(res.Status())).Inc()
	m.duration.WithLabelValues(res.Scenario()).Set(res.Duration().Seconds())
	if res.Passed() {
		m.lastSuccess.WithLabelValues(res.Scenario()).Set(float64(res.Started().Unix()))
	}
}

// WriteTextfile atomically writes the collected metrics to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Tee fans runner events out to several observers.
func Tee(observers ...runner.Observer) runner.Observer {
	return tee(observers)
}

type tee []runner.Observer

func (t tee) ScenarioStarted(name string, steps int) {
	for _, o := range t {
		o.ScenarioStarted(name, steps)
	}
}

func (t tee) StepStarted(name string, index int, step scenario.Step) {
	for _, o := range t {
		o.StepStarted(name, index, step)
	}
}

func (t tee) StepFinished(name string, rec runner.StepRecord) {
	for _, o := range t {
		o.StepFinished(name, rec)
	}
}

func (t tee) ScenarioFinished(res runner.Result) {
	for _, o := range t {
		o.ScenarioFinished(res)
	}
}
