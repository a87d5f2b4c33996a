// Package metrics accumulates per-day comm_bytes and per-phase wall-clock
// timing (spec.md §4.8), backed by an in-process prometheus registry (no
// HTTP exporter — the registry is drained to plain text at end-of-run, per
// §1's non-goal of an observability surface). Grounded on the teacher's
// StreamCounter byte-counting pattern in session.go, generalized from a
// single HTTP body to a day-indexed and phase-indexed accounting structure.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Phase names match spec.md §4.8.
const (
	PhaseDaily      = "daily"
	PhaseUpdates    = "updates"
	PhaseCandidates = "candidates"
	PhaseGarbled    = "garbled"
	PhaseOTs        = "ots"
)

// Recorder owns the per-run prometheus collectors.
type Recorder struct {
	registry  *prometheus.Registry
	commBytes *prometheus.CounterVec
	phaseTime *prometheus.HistogramVec
}

// New constructs a fresh, unregistered-with-any-HTTP-handler Recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	commBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upsi_comm_bytes_total",
		Help: "Serialized message bytes sent, by day.",
	}, []string{"day"})
	phaseTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "upsi_phase_seconds",
		Help: "Per-phase wall-clock timing.",
	}, []string{"phase"})
	reg.MustRegister(commBytes, phaseTime)
	return &Recorder{registry: reg, commBytes: commBytes, phaseTime: phaseTime}
}

// RecordBytes adds n bytes of serialized message size to the given day's
// running total (spec.md §4.8 "sum of serialized message sizes on send").
func (r *Recorder) RecordBytes(day int, n int) {
	r.commBytes.WithLabelValues(dayLabel(day)).Add(float64(n))
}

// Timer returns a stop function that records elapsed wall-clock time under
// phase when called, used as `defer rec.Timer(metrics.PhaseUpdates)()`.
func (r *Recorder) Timer(phase string) func() {
	start := time.Now()
	return func() {
		r.phaseTime.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}

func dayLabel(day int) string { return fmt.Sprintf("%d", day) }

// DumpText writes a plain-text end-of-run summary to w (spec.md §4.8
// "Printed at end-of-run as plain text").
func (r *Recorder) DumpText(w io.Writer) error {
	metricFamilies, err := r.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range metricFamilies {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf("%s=%s ", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %s%.0f\n", mf.GetName(), labels, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s %scount=%d sum=%.6f\n", mf.GetName(), labels, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}
