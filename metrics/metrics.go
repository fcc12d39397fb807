package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spt2db"

// Recorder 一次运行内的计数器, 使用私有 registry
type Recorder struct {
	registry *prometheus.Registry

	Files     *prometheus.CounterVec
	Rows      *prometheus.CounterVec
	Splits    prometheus.Counter
	Bars      *prometheus.CounterVec
	Durations *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Processed files by stage and outcome.",
		}, []string{"stage", "outcome"}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Tick rows dropped by reason.",
		}, []string{"reason"}),
		Splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "split_artifacts_total",
			Help:      "Split artifacts written.",
		}),
		Bars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kline_bars_total",
			Help:      "K-line bars written by level.",
		}, []string{"level"}),
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_seconds",
			Help:      "Per file processing time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
	}
	r.registry.MustRegister(r.Files, r.Rows, r.Splits, r.Bars, r.Durations)
	return r
}

func (r *Recorder) File(stage, outcome string) {
	if r == nil {
		return
	}
	r.Files.WithLabelValues(stage, outcome).Inc()
}

func (r *Recorder) Dropped(reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Rows.WithLabelValues(reason).Add(float64(n))
}

func (r *Recorder) Split(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Splits.Add(float64(n))
}

func (r *Recorder) Bar(level string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Bars.WithLabelValues(level).Add(float64(n))
}

func (r *Recorder) Observe(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.Durations.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteFile 以 node_exporter textfile 格式落盘, path 为空时不写
func (r *Recorder) WriteFile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
