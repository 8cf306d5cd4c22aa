// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"github.com/heistp/dualpi2/sim"
	"go.uber.org/zap"
)

// wifiFrameOverhead is the per-packet Wi-Fi framing overhead in bytes.  A
// packet of size s consumes s+38 from the pending byte budget.
const wifiFrameOverhead = 38

// PendingDequeue is invoked by an aggregating downstream (e.g. the Wi-Fi MAC
// building an A-MPDU) with the byte budget of its next transmission.  It
// always refreshes the latency estimator samples.  When the downstream
// transmit queue is stopped and the queue disc holds at least the budget
// (counting the framing overhead of each queued packet),
// it pre-computes the batch: packets are selected with the scheduler under
// the byte budget, run through the AQM, and moved to the staging queues,
// from which subsequent Dequeue calls drain in order.
//
// After the batch is staged, if fewer packets were marked in the batch than
// remain in the live L4S queue behind it, additional ECT(1) packets in the
// L4S staging queue are marked to make up the difference, so the senders
// receive at least one CE per remaining packet while the batch is held
// behind the aggregate.
func (d *DualPi2) PendingDequeue(pendingBytes sim.Bytes, node sim.Node) {
	now := node.Now()
	if it, ok := d.cq.peek(); ok {
		d.cLatencySample = now - it.Timestamp()
	} else {
		d.cLatencySample = 0
	}
	if it, ok := d.lq.peek(); ok {
		d.lLatencySample = now - it.Timestamp()
	} else {
		d.lLatencySample = 0
	}
	d.cBytesSample = d.cq.size()

	if d.down == nil || !d.down.Stopped() {
		return
	}
	queueDiscPending := d.QueueSize() +
		wifiFrameOverhead*sim.Bytes(d.queuePackets())
	if pendingBytes > queueDiscPending {
		// The downstream can absorb the whole queue disc; no pre-staging.
		return
	}

	d.log.Debug("pending dequeue",
		zap.Int("pendingBytes", int(pendingBytes)),
		zap.Int("queueDiscPending", int(queueDiscPending)))

	left := pendingBytes
	markedCount := 0
	for i := 0; ; i++ {
		if i > maxSchedulerIterations {
			panic("pending dequeue: infinite loop")
		}
		eligC, eligL := d.canSchedule(left)
		if !eligC && !eligL {
			break
		}
		switch d.sched.schedule(d.cq.holSize(), d.lq.holSize(), eligC, eligL) {
		case bandL4S:
			it, marked := d.dequeueL4s(now)
			if it == nil { // dropped to empty
				continue
			}
			d.sl.push(it)
			left -= it.Size() + wifiFrameOverhead
			if marked {
				markedCount++
			}
		case bandClassic:
			it, _ := d.dequeueClassic()
			if it == nil {
				continue
			}
			d.sc.push(it)
			left -= it.Size() + wifiFrameOverhead
		default:
			return
		}
	}
	// Top up the staged marks to the number of packets still behind the
	// batch.  Only packets carrying ECT(1) absorb a top-up mark.
	if remaining := d.lq.len(); remaining > markedCount {
		pendingMarks := remaining - markedCount
		for _, it := range d.sl.items {
			if pendingMarks == 0 {
				break
			}
			if it.ECN() == ECT1 && it.Mark() {
				d.stats.Marks++
				d.tracer.OnMark(L4S)
				pendingMarks--
			}
		}
		d.log.Debug("pending dequeue mark top-up",
			zap.Int("remaining", remaining),
			zap.Int("markedCount", markedCount),
			zap.Int("unmet", pendingMarks))
	}
}

// canSchedule returns whether each band's head-of-line packet, as framed on
// the Wi-Fi link, fits in the remaining byte budget.
func (d *DualPi2) canSchedule(byteLimit sim.Bytes) (eligC, eligL bool) {
	if d.queuePackets() == 0 {
		return false, false
	}
	if hol := d.cq.holSize(); hol > 0 && hol+wifiFrameOverhead <= byteLimit {
		eligC = true
	}
	if hol := d.lq.holSize(); hol > 0 && hol+wifiFrameOverhead <= byteLimit {
		eligL = true
	}
	return
}
