// Package metrics keeps per-run counters in a Prometheus registry so they can
// be dropped into a node_exporter textfile directory after a sync.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sonar2dojo"

// Recorder collects the counters of a single sync run
type Recorder struct {
	registry *prometheus.Registry

	projects *prometheus.CounterVec
	findings *prometheus.CounterVec
	lastRun  prometheus.Gauge
	duration prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		projects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projects_total",
			Help:      "Projects processed, by outcome.",
		}, []string{"outcome"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings submitted to DefectDojo, by result.",
		}, []string{"result"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last sync finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last sync.",
		}),
	}
	r.registry.MustRegister(r.projects, r.findings, r.lastRun, r.duration)
	return r
}

// ProjectDone counts a project outcome
func (r *Recorder) ProjectDone(outcome string) {
	r.projects.WithLabelValues(outcome).Inc()
}

// FindingUploaded counts a finding accepted by DefectDojo
func (r *Recorder) FindingUploaded() {
	r.findings.WithLabelValues("uploaded").Inc()
}

// FindingFailed counts a finding DefectDojo rejected
func (r *Recorder) FindingFailed() {
	r.findings.WithLabelValues("failed").Inc()
}

// RunFinished records the run window
func (r *Recorder) RunFinished(started, finished time.Time) {
	r.lastRun.Set(float64(finished.Unix()))
	r.duration.Set(finished.Sub(started).Seconds())
}

// WriteTextfile writes the registry in the Prometheus text format
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
