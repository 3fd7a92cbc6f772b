// Package metrics exposes pipeline counters on a dedicated Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hydra"

// Registry holds every collector of this process.
var Registry = prometheus.NewRegistry()

var (
	JobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "node",
		Name:      "jobs_submitted_total",
		Help:      "Tasks submitted to the processing node.",
	})

	JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "node",
		Name:      "jobs_finished_total",
		Help:      "Tasks observed in a terminal state, by status.",
	}, []string{"status"})

	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "node",
		Name:      "poll_errors_total",
		Help:      "Transient errors while polling task state.",
	})

	MaterializeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "materialize",
		Name:      "categories_total",
		Help:      "Per-category materialization outcomes.",
	}, []string{"category", "result"})

	GPSOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gps",
		Name:      "images_total",
		Help:      "GPS extraction outcomes per image.",
	}, []string{"result"})

	RunsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by flow and final status.",
	}, []string{"flow", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		JobsSubmitted,
		JobsFinished,
		PollErrors,
		MaterializeOutcomes,
		GPSOutcomes,
		RunsFinished,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveMaterialize counts one category outcome.
func ObserveMaterialize(category string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	MaterializeOutcomes.WithLabelValues(category, result).Inc()
}
