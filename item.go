// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

// Package dualpi2 implements the DualPI2 coupled dual-queue AQM (RFC 9332):
// a Classic queue governed by a PI² controller and an L4S queue with a
// low-latency ramp marker, served by a weighted deficit round robin
// scheduler, with a pending-dequeue protocol for aggregating links.
package dualpi2

import "github.com/heistp/dualpi2/sim"

// ECN is the two-bit ECN codepoint from the IP DS field.
type ECN uint8

const (
	NotECT ECN = 0b00
	ECT1   ECN = 0b01
	ECT0   ECN = 0b10
	CE     ECN = 0b11
)

func (e ECN) String() string {
	switch e {
	case NotECT:
		return "NotECT"
	case ECT1:
		return "ECT(1)"
	case ECT0:
		return "ECT(0)"
	case CE:
		return "CE"
	}
	return "invalid"
}

// isL4S returns true for the codepoints routed to the L4S queue.
func (e ECN) isL4S() bool {
	return e == ECT1 || e == CE
}

// An Item is a packet as seen by the queue disc.  The disc reads the size and
// the ECN codepoint, stamps the enqueue time, and may set the codepoint to CE
// through Mark.  Payloads are never inspected.
type Item interface {
	// Size returns the packet size in bytes.
	Size() sim.Bytes

	// Timestamp returns the enqueue time stamped by the queue disc.
	Timestamp() sim.Clock

	// SetTimestamp stamps the enqueue time.
	SetTimestamp(sim.Clock)

	// ECN returns the ECN codepoint (the low two bits of the DS field).
	ECN() ECN

	// Mark sets the ECN codepoint to CE, and returns false for Not-ECT
	// packets, which cannot be marked.
	Mark() bool
}

// Datagram is an in-memory Item used in simulations and tests.
type Datagram struct {
	Len  sim.Bytes
	DS   uint8 // DS field; the low two bits are the ECN codepoint
	Flow int
	Seq  int
	Sent sim.Clock
	enq  sim.Clock
}

// Size implements Item.
func (d *Datagram) Size() sim.Bytes {
	return d.Len
}

// Timestamp implements Item.
func (d *Datagram) Timestamp() sim.Clock {
	return d.enq
}

// SetTimestamp implements Item.
func (d *Datagram) SetTimestamp(t sim.Clock) {
	d.enq = t
}

// ECN implements Item.
func (d *Datagram) ECN() ECN {
	return ECN(d.DS & 0b11)
}

// Mark implements Item.
func (d *Datagram) Mark() bool {
	if d.ECN() == NotECT {
		return false
	}
	d.DS |= uint8(CE)
	return true
}
