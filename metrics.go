// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"time"

	"github.com/heistp/dualpi2/sim"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Metrics is a Tracer exporting the queue disc's trace points as Prometheus
// metrics.
type Metrics struct {
	ProbC        prometheus.Gauge
	ProbL        prometheus.Gauge
	ProbCL       prometheus.Gauge
	BytesInQueue prometheus.Gauge
	Sojourn      *prometheus.HistogramVec
	Marks        *prometheus.CounterVec
	Drops        *prometheus.CounterVec
}

// NewMetrics returns a new Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ProbC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dualpi2_prob_c",
			Help: "Classic drop/mark probability (p_C)",
		}),
		ProbL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dualpi2_prob_l",
			Help: "L4S mark probability (p_L)",
		}),
		ProbCL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dualpi2_prob_cl",
			Help: "Coupled probability (p_CL)",
		}),
		BytesInQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dualpi2_bytes_in_queue",
			Help: "Combined bytes in the Classic and L4S queues",
		}),
		Sojourn: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dualpi2_sojourn_seconds",
			Help:    "Sojourn time of dequeued packets",
			Buckets: prometheus.ExponentialBuckets(100e-6, 2, 16),
		}, []string{"class"}),
		Marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualpi2_marks_total",
			Help: "Total CE marks applied",
		}, []string{"class"}),
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualpi2_drops_total",
			Help: "Total packets dropped",
		}, []string{"reason"}),
	}
}

// Register registers all collectors with the given registerer.
func (m *Metrics) Register(r prometheus.Registerer) (err error) {
	for _, c := range []prometheus.Collector{
		m.ProbC, m.ProbL, m.ProbCL, m.BytesInQueue, m.Sojourn, m.Marks,
		m.Drops,
	} {
		err = multierr.Append(err, r.Register(c))
	}
	return
}

// OnProbUpdate implements Tracer.
func (m *Metrics) OnProbUpdate(pC, pL, pCL float64) {
	m.ProbC.Set(pC)
	m.ProbL.Set(pL)
	m.ProbCL.Set(pCL)
}

// OnSojourn implements Tracer.
func (m *Metrics) OnSojourn(class Class, sojourn sim.Clock) {
	m.Sojourn.WithLabelValues(class.String()).
		Observe(time.Duration(sojourn).Seconds())
}

// OnMark implements Tracer.
func (m *Metrics) OnMark(class Class) {
	m.Marks.WithLabelValues(class.String()).Inc()
}

// OnDrop implements Tracer.
func (m *Metrics) OnDrop(reason DropReason) {
	m.Drops.WithLabelValues(reason.String()).Inc()
}

// OnBytesInQueue implements Tracer.
func (m *Metrics) OnBytesInQueue(bytes sim.Bytes) {
	m.BytesInQueue.Set(float64(bytes))
}
