package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assetpipe"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration *prom.HistogramVec
	taskOutcomes *prom.CounterVec
	skippedFiles *prom.CounterVec
	reloads      *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of transform task runs",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		taskOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Transform task runs by outcome",
		}, []string{"task", "outcome"}),
		skippedFiles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_files_total",
			Help:      "Files skipped by a fault barrier",
		}, []string{"task"}),
		reloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Reload notifications sent to browsers",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskOutcomes, pr.skippedFiles, pr.reloads)

	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskOutcome(task string, outcome Outcome) {
	if p == nil {
		return
	}
	p.taskOutcomes.WithLabelValues(task, string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddSkippedFiles(task string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.skippedFiles.WithLabelValues(task).Add(float64(n))
}

func (p *PrometheusRecorder) IncReload(kind string) {
	if p == nil {
		return
	}
	p.reloads.WithLabelValues(kind).Inc()
}

// HTTPHandler returns an http.Handler that serves the metrics in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
