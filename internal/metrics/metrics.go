// Package metrics records survey engine activity as Prometheus metrics.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/prospectsim/prospect/internal/survey"
)

// Recorder owns a registry of survey metrics. It is safe for concurrent use.
type Recorder struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	evaluated   *prometheus.CounterVec
	discoveries *prometheus.CounterVec
	batches     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_runs_total",
			Help: "Survey runs completed.",
		}, []string{"survey"}),
		evaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_features_evaluated_total",
			Help: "Detection rolls made against undiscovered features.",
		}, []string{"survey"}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_discoveries_total",
			Help: "Features discovered.",
		}, []string{"survey"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_batches_total",
			Help: "Survey batches completed.",
		}, []string{"survey"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prospect_run_duration_seconds",
			Help:    "Wall time of a single survey run.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"survey"}),
	}
	r.registry.MustRegister(r.runs, r.evaluated, r.discoveries, r.batches, r.duration)
	return r
}

// Registry returns the recorder's registry for serving or gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Observer returns a survey observer that records under the survey label.
func (r *Recorder) Observer(surveyName string) survey.Observer {
	return &observer{
		runs:        r.runs.WithLabelValues(surveyName),
		evaluated:   r.evaluated.WithLabelValues(surveyName),
		discoveries: r.discoveries.WithLabelValues(surveyName),
		duration:    r.duration.WithLabelValues(surveyName),
	}
}

// BatchCompleted counts a finished batch.
func (r *Recorder) BatchCompleted(b survey.Batch) {
	r.batches.WithLabelValues(b.Survey).Inc()
}

// WriteText writes every gathered metric in the Prometheus text format.
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

type observer struct {
	runs        prometheus.Counter
	evaluated   prometheus.Counter
	discoveries prometheus.Counter
	duration    prometheus.Observer
}

func (o *observer) RunCompleted(s survey.RunStats) {
	o.runs.Inc()
	o.evaluated.Add(float64(s.Evaluated))
	o.discoveries.Add(float64(s.Discovered))
	o.duration.Observe(s.Elapsed.Seconds())
}
