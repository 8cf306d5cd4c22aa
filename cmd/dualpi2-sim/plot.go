// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package main

import (
	"strconv"

	"github.com/heistp/dualpi2"
	"github.com/heistp/dualpi2/sim"
	"github.com/heistp/dualpi2/xplot"
)

// clockSource publishes the current simulation time to the plot tracer,
// which receives queue disc events without timestamps.
type clockSource struct {
	now sim.Clock
}

// plotTracer is a dualpi2.Tracer that writes xplot files for the coupled
// probabilities and per-class sojourn times.
type plotTracer struct {
	dualpi2.NopTracer
	clock       *clockSource
	plotSojourn bool
	plotProbs   bool
	sojourn     xplot.Plot
	probs       xplot.Plot
}

// newPlotTracer returns a new plotTracer.
func newPlotTracer(clock *clockSource, plots Plots) *plotTracer {
	return &plotTracer{
		NopTracer:   dualpi2.NopTracer{},
		clock:       clock,
		plotSojourn: plots.Sojourn,
		plotProbs:   plots.Probs,
		sojourn: xplot.Plot{
			Title: "DualPI2 Sojourn Time - Classic:white, L4S:yellow",
			X: xplot.Axis{
				Label: "Time (S)",
			},
			Y: xplot.Axis{
				Label: "Sojourn time (ms)",
			},
		},
		probs: xplot.Plot{
			Title: "DualPI2 Probabilities - p_C:white, p_L:yellow, p_CL:red",
			X: xplot.Axis{
				Label: "Time (S)",
			},
			Y: xplot.Axis{
				Label: "Probability",
			},
		},
	}
}

// open opens the configured plot files.
func (p *plotTracer) open() (err error) {
	if p.plotSojourn {
		if err = p.sojourn.Open("sojourn.xpl"); err != nil {
			return
		}
	}
	if p.plotProbs {
		err = p.probs.Open("probs.xpl")
	}
	return
}

// close closes the plot files.
func (p *plotTracer) close() {
	if p.plotSojourn {
		p.sojourn.Close()
	}
	if p.plotProbs {
		p.probs.Close()
	}
}

// OnSojourn implements dualpi2.Tracer.
func (p *plotTracer) OnSojourn(class dualpi2.Class, sojourn sim.Clock) {
	if !p.plotSojourn {
		return
	}
	c := 0
	if class == dualpi2.L4S {
		c = 4
	}
	p.sojourn.Dot(p.clock.now, sojourn.StringMS(), c)
}

// OnProbUpdate implements dualpi2.Tracer.
func (p *plotTracer) OnProbUpdate(pC, pL, pCL float64) {
	if !p.plotProbs {
		return
	}
	now := p.clock.now
	p.probs.Dot(now, strconv.FormatFloat(pC, 'f', -1, 64), 0)
	p.probs.Dot(now, strconv.FormatFloat(pL, 'f', -1, 64), 4)
	p.probs.Dot(now, strconv.FormatFloat(pCL, 'f', -1, 64), 2)
}
