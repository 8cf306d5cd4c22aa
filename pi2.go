// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"time"

	"github.com/heistp/dualpi2/sim"
	"go.uber.org/zap"
)

// Tick is the timer datum for the PI² update.  The node that owns the queue
// disc routes it back through OnTick when its Ding fires.
type Tick struct{}

// Start arms the first PI² update timer.  It has the sim.Starter signature;
// the node that owns the disc calls it from its own Start.
func (d *DualPi2) Start(node sim.Node) error {
	delay := sim.Clock(d.cfg.StartTime) - node.Now()
	if delay < 0 {
		delay = 0
	}
	node.Timer(delay, Tick{})
	return nil
}

// OnTick runs one PI² update and re-arms the update timer.  The owning node
// calls this when it receives a Tick from its Ding.
func (d *DualPi2) OnTick(node sim.Node) {
	if d.closed {
		return
	}
	d.update(node.Now())
	node.Timer(sim.Clock(d.cfg.Tupdate), Tick{})
}

// update advances the base probability from the current queue delay, and
// derives the coupled probabilities: p_CL = k * baseProb clamped to 1, and
// p_C = baseProb^2, so that scalable and Classic flows converge to equal
// throughput at the same baseProb.
func (d *DualPi2) update(now sim.Clock) {
	var cQ, lQ sim.Clock
	if d.cfg.EnableWifiClassicLatencyEstimator {
		// Use the most recent samples taken at pending-dequeue time to
		// estimate the Classic latency: l1 is the max head-of-line sojourn,
		// l2 scales the sampled Classic backlog to the delay target.
		l1 := max(d.cLatencySample, d.lLatencySample)
		l2 := sim.Clock(int64(d.cBytesSample) * int64(d.cfg.Target) /
			int64(d.cfg.AggBufferLimit))
		cQ = min(l1, l2)
	} else {
		if item, ok := d.cq.peek(); ok {
			cQ = now - item.Timestamp()
		}
	}
	if item, ok := d.lq.peek(); ok {
		lQ = now - item.Timestamp()
	}
	curQ := max(cQ, lQ)

	target := sim.Clock(d.cfg.Target)
	d.baseProb += d.cfg.Alpha*(curQ-target).Seconds() +
		d.cfg.Beta*(curQ-d.prevQ).Seconds()
	d.baseProb = min(max(d.baseProb, 0), 1)
	d.pCL = min(d.baseProb*d.cfg.K, 1)
	d.pC = d.baseProb * d.baseProb
	d.prevQ = curQ

	d.tracer.OnProbUpdate(d.pC, d.pL, d.pCL)
	d.log.Debug("pi2 update",
		zap.Duration("curQ", time.Duration(curQ)),
		zap.Float64("baseProb", d.baseProb),
		zap.Float64("pC", d.pC),
		zap.Float64("pCL", d.pCL))
}
