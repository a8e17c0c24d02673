// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package metrics exposes run and row counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "satchange"

// Outcome labels for finished runs
const (
	OutcomeDone  = "done"
	OutcomeError = "error"
)

// Collectors for transform runs, registered on their own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	progress prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Transform runs by transform type and outcome.",
		}, []string{"transform", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Raster rows transformed, by transform type.",
		}, []string{"transform"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of transform runs from load to save.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"transform"}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_percent",
			Help:      "Progress of the current run, 0 to 100.",
		}),
	}
	r.registry.MustRegister(r.runs, r.rows, r.duration, r.progress,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// Counts a finished run and its wall time
func (r *Recorder) ObserveRun(transform, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(transform, outcome).Inc()
	r.duration.WithLabelValues(transform).Observe(elapsed.Seconds())
}

func (r *Recorder) AddRows(transform string, n int) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues(transform).Add(float64(n))
}

func (r *Recorder) SetProgress(percent int) {
	if r == nil {
		return
	}
	r.progress.Set(float64(percent))
}

// HTTP handler serving the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serves the metrics handler on addr until the server fails
func (r *Recorder) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return http.ListenAndServe(addr, mux)
}
