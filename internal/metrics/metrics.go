package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run holds the collectors for a single merge run on a private registry, so
// they can be exported with WriteTextfile for node_exporter's textfile
// collector.
type Run struct {
	registry *prometheus.Registry

	SourcesTotal  prometheus.Gauge
	SourcesOK     prometheus.Gauge
	Channels      prometheus.Gauge
	Programmes    prometheus.Gauge
	Dropped       *prometheus.GaugeVec
	FetchAttempts *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	Outcome       *prometheus.GaugeVec
	LastRun       prometheus.Gauge
}

// NewRun registers the run collectors on a private registry.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Run{
		registry: reg,
		SourcesTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "epgmerge_sources_total",
			Help: "Number of configured sources",
		}),
		SourcesOK: f.NewGauge(prometheus.GaugeOpts{
			Name: "epgmerge_sources_ok",
			Help: "Number of sources fetched and parsed successfully",
		}),
		Channels: f.NewGauge(prometheus.GaugeOpts{
			Name: "epgmerge_channels_retained",
			Help: "Channels in the merged guide",
		}),
		Programmes: f.NewGauge(prometheus.GaugeOpts{
			Name: "epgmerge_programmes_retained",
			Help: "Programmes in the merged guide",
		}),
		Dropped: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epgmerge_records_dropped",
			Help: "Records dropped during merge",
		}, []string{"kind", "reason"}),
		FetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epgmerge_fetch_attempts_total",
			Help: "Fetch attempts by result",
		}, []string{"result"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "epgmerge_fetch_duration_seconds",
			Help:    "Time to fetch a source including retries",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		}, []string{"result"}),
		Outcome: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epgmerge_run_outcome",
			Help: "1 for the outcome of the last run, 0 otherwise",
		}, []string{"outcome"}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "epgmerge_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

// ObserveAttempt counts one fetch attempt.
func (r *Run) ObserveAttempt(err error) {
	r.FetchAttempts.WithLabelValues(result(err)).Inc()
}

// ObserveFetch records the total time spent on one source.
func (r *Run) ObserveFetch(elapsed time.Duration, err error) {
	r.FetchDuration.WithLabelValues(result(err)).Observe(elapsed.Seconds())
}

// SetOutcome marks outcome as the current one among all known outcomes.
func (r *Run) SetOutcome(outcome string, known []string, at time.Time) {
	for _, k := range known {
		v := 0.0
		if k == outcome {
			v = 1
		}
		r.Outcome.WithLabelValues(k).Set(v)
	}
	r.LastRun.Set(float64(at.Unix()))
}

// Gatherer exposes the registry, mainly for tests.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the metrics in the text exposition format. The file is
// replaced atomically.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
