// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"fmt"
	"time"

	"github.com/heistp/dualpi2/logging"
	"github.com/heistp/dualpi2/sim"
	"go.uber.org/zap"
)

var logger = logging.New("dualpi2")

// thLen is the L queue length in packets at or below which LAQM marking is
// suppressed.
const thLen = 1

// Stats holds the queue disc packet counters.
type Stats struct {
	Enqueued     uint64
	Dequeued     uint64
	ForcedDrops  uint64
	ClassicDrops uint64
	L4sDrops     uint64
	Marks        uint64
}

// DualPi2 is the DualPI2 queue disc.  All methods must be called from a
// single goroutine (in the simulator, the owning node).
type DualPi2 struct {
	cfg    Config
	log    *zap.Logger
	tracer Tracer
	down   Downstream

	cq fifo // Classic queue
	lq fifo // L4S queue
	sc fifo // Classic staging queue (pending-dequeue)
	sl fifo // L4S staging queue (pending-dequeue)

	// PI² state
	baseProb float64
	prevQ    sim.Clock
	pC       float64
	pL       float64
	pCL      float64
	pCmax    float64
	pLmax    float64

	// recur counters
	classicCount float64
	l4sCount     float64

	marker laqm
	sched  wdrr

	// Wi-Fi classic latency estimator samples
	cLatencySample sim.Clock
	lLatencySample sim.Clock
	cBytesSample   sim.Bytes

	stats  Stats
	closed bool
}

// New returns a new DualPi2, or an error if the configuration is invalid.
func New(cfg Config) (*DualPi2, error) {
	if cfg.Mtu == 0 {
		cfg.Mtu = defaultMtu
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dualpi2: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = logger
	}
	if cfg.Tracer == nil {
		cfg.Tracer = NopTracer{}
	}
	return &DualPi2{
		cfg:    cfg,
		log:    cfg.Log,
		tracer: cfg.Tracer,
		down:   cfg.Downstream,
		pCmax:  min(1/(cfg.K*cfg.K), 1),
		pLmax:  1,
		marker: laqm{
			minTh:    sim.Clock(cfg.MinTh),
			rng:      sim.Clock(cfg.Range),
			disabled: cfg.DisableLaqm,
		},
		sched: wdrr{
			quantum: cfg.DrrQuantum,
			weight:  cfg.SchedulingWeight,
		},
	}, nil
}

// SetDownstream sets the downstream queue-state contract consulted by
// PendingDequeue.
func (d *DualPi2) SetDownstream(down Downstream) {
	d.down = down
}

// QueueSize returns the combined bytes held in the two live queues.
func (d *DualPi2) QueueSize() sim.Bytes {
	return d.cq.size() + d.lq.size()
}

// queuePackets returns the combined packets held in the two live queues.
func (d *DualPi2) queuePackets() int {
	return d.cq.len() + d.lq.len()
}

// Stats returns a copy of the packet counters.
func (d *DualPi2) Stats() Stats {
	return d.stats
}

// Enqueue classifies the item by its ECN codepoint and appends it to the
// Classic or L4S queue, stamping the enqueue time.  It returns false if the
// item was dropped because the shared byte limit would be exceeded.
func (d *DualPi2) Enqueue(item Item, node sim.Node) bool {
	if d.QueueSize()+item.Size() > d.cfg.QueueLimit {
		d.stats.ForcedDrops++
		d.tracer.OnDrop(ForcedDrop)
		d.log.Debug("enqueue drop over queue limit",
			zap.Int("size", int(item.Size())),
			zap.Int("limit", int(d.cfg.QueueLimit)))
		return false
	}
	item.SetTimestamp(node.Now())
	if item.ECN().isL4S() {
		d.lq.push(item)
	} else {
		d.cq.push(item)
	}
	d.stats.Enqueued++
	d.tracer.OnBytesInQueue(d.QueueSize())
	return true
}

// dequeueL4s pops from the L4S queue and applies marking.  In the normal
// regime, the marking probability is the max of the LAQM ramp and the
// coupled probability.  In overload (p_CL at its max), packets are dropped
// at the Classic probability and marked at the coupled probability.  On a
// drop it continues with the next packet, so a nil item means the queue
// emptied.
func (d *DualPi2) dequeueL4s(now sim.Clock) (item Item, marked bool) {
	it, ok := d.lq.pop()
	for ok {
		if d.pCL < d.pLmax {
			var pPrimeL float64
			if d.lq.len() > thLen {
				pPrimeL = d.marker.prob(now - it.Timestamp())
			}
			pL := min(max(pPrimeL, d.pCL), 1)
			d.pL = pL
			d.tracer.OnProbUpdate(d.pC, d.pL, d.pCL)
			if recur(&d.l4sCount, pL) {
				if !it.Mark() {
					// The packet contract allows Mark to fail for Not-ECT,
					// which never classifies to this queue; fall back to
					// drop rather than let the signal vanish.
					d.dropAfterDequeue(it, UnforcedL4sDrop)
					it, ok = d.lq.pop()
					continue
				}
				d.stats.Marks++
				d.tracer.OnMark(L4S)
				marked = true
			}
		} else { // overload saturation
			if recur(&d.l4sCount, d.pC) {
				d.dropAfterDequeue(it, UnforcedL4sDrop)
				it, ok = d.lq.pop()
				continue
			}
			if recur(&d.l4sCount, d.pCL) {
				if it.Mark() {
					d.stats.Marks++
					d.tracer.OnMark(L4S)
					marked = true
				}
			}
		}
		return it, marked
	}
	return nil, false
}

// dequeueClassic pops from the Classic queue and applies the squared drop
// probability.  The last 2 MTU of backlog are never dropped (heuristic from
// the Linux implementation).  A nil item means the queue emptied while
// dropping.
func (d *DualPi2) dequeueClassic() (item Item, dropped bool) {
	for {
		it, ok := d.cq.pop()
		if !ok {
			return nil, dropped
		}
		if d.cq.size() < 2*d.cfg.Mtu {
			return it, dropped
		}
		// overload disables ECN, so pC at its max always drops
		if recur(&d.classicCount, d.pC) || d.pC >= d.pCmax {
			d.dropAfterDequeue(it, UnforcedClassicDrop)
			dropped = true
			continue
		}
		return it, dropped
	}
}

// dropAfterDequeue records an unforced AQM drop.
func (d *DualPi2) dropAfterDequeue(item Item, reason DropReason) {
	switch reason {
	case UnforcedClassicDrop:
		d.stats.ClassicDrops++
	case UnforcedL4sDrop:
		d.stats.L4sDrops++
	}
	d.tracer.OnDrop(reason)
	d.log.Debug("aqm drop",
		zap.Stringer("reason", reason),
		zap.Int("size", int(item.Size())))
}

// Dequeue returns the next packet for the downstream, or nil if the queue
// disc is empty.  Staged packets from a pending-dequeue batch drain first,
// L4S before Classic, already marked; otherwise the scheduler selects a live
// queue and the AQM may drop or mark before returning.
func (d *DualPi2) Dequeue(node sim.Node) Item {
	if it, ok := d.sl.pop(); ok {
		d.deliver(it, L4S, node)
		return it
	}
	if it, ok := d.sc.pop(); ok {
		d.deliver(it, Classic, node)
		return it
	}
	for d.queuePackets() > 0 {
		switch d.sched.schedule(d.cq.holSize(), d.lq.holSize(), true, true) {
		case bandL4S:
			if it, _ := d.dequeueL4s(node.Now()); it != nil {
				d.deliver(it, L4S, node)
				return it
			}
		case bandClassic:
			if it, _ := d.dequeueClassic(); it != nil {
				d.deliver(it, Classic, node)
				return it
			}
		default:
			return nil
		}
	}
	return nil
}

// deliver traces a packet handed to the downstream.
func (d *DualPi2) deliver(item Item, class Class, node sim.Node) {
	sojourn := node.Now() - item.Timestamp()
	d.stats.Dequeued++
	d.tracer.OnSojourn(class, sojourn)
	d.tracer.OnBytesInQueue(d.QueueSize())
	d.log.Debug("dequeue",
		zap.Stringer("class", class),
		zap.Duration("sojourn", time.Duration(sojourn)))
}

// Peek returns the head packet without removing it, staging queues first,
// then Classic, then L4S.
func (d *DualPi2) Peek() Item {
	for _, q := range []*fifo{&d.sl, &d.sc, &d.cq, &d.lq} {
		if it, ok := q.peek(); ok {
			return it
		}
	}
	return nil
}

// Len returns the number of packets held, including staged packets.
func (d *DualPi2) Len() int {
	return d.queuePackets() + d.sc.len() + d.sl.len()
}

// Close stops the PI² update timer: its next firing does not re-arm it.
// Staged packets are left in the staging queues.  It may be called once.
func (d *DualPi2) Close() error {
	if d.closed {
		return fmt.Errorf("dualpi2: already closed")
	}
	d.closed = true
	return nil
}
