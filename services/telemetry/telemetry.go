package telemetrysvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/ripoti/core/editor"
)

const namespace = "ripoti"

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the app collectors. It implements editor.Recorder.
type Metrics struct {
	registry     *prometheus.Registry
	commands     *prometheus.CounterVec
	saves        *prometheus.CounterVec
	generations  *prometheus.CounterVec
	openSessions prometheus.Gauge
}

var _ editor.Recorder = (*Metrics)(nil)

// New registers the app collectors on a fresh registry, along with the go & process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_commands_total",
			Help:      "Editing session commands, by action and result.",
		}, []string{"action", "result"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_saves_total",
			Help:      "Report saves, by result.",
		}, []string{"result"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_generations_total",
			Help:      "AI text generations, by result.",
		}, []string{"result"}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Editing sessions currently open.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands,
		m.saves,
		m.generations,
		m.openSessions,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// CommandDone counts a session command dispatched by the API.
func (m *Metrics) CommandDone(action string, err error) {
	m.commands.WithLabelValues(action, result(err)).Inc()
}

func (m *Metrics) OpenSessions(n int) { m.openSessions.Set(float64(n)) }

func (m *Metrics) SaveDone(err error) { m.saves.WithLabelValues(result(err)).Inc() }

func (m *Metrics) GenerationDone(err error) { m.generations.WithLabelValues(result(err)).Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
