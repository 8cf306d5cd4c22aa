// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import "github.com/heistp/dualpi2/sim"

// Class identifies one of the two traffic classes.
type Class int

const (
	Classic Class = iota
	L4S
)

func (c Class) String() string {
	switch c {
	case Classic:
		return "Classic"
	case L4S:
		return "L4S"
	}
	return "invalid"
}

// DropReason identifies why a packet was dropped.
type DropReason int

const (
	// ForcedDrop is a tail drop at enqueue time, over the shared byte limit.
	ForcedDrop DropReason = iota

	// UnforcedClassicDrop is an AQM drop from the Classic queue.
	UnforcedClassicDrop

	// UnforcedL4sDrop is an AQM drop from the L4S queue in overload.
	UnforcedL4sDrop
)

func (r DropReason) String() string {
	switch r {
	case ForcedDrop:
		return "forced"
	case UnforcedClassicDrop:
		return "unforced-classic"
	case UnforcedL4sDrop:
		return "unforced-l4s"
	}
	return "invalid"
}

// A Tracer receives the queue disc's observable events.  Implementations
// must not call back into the disc.
type Tracer interface {
	// OnProbUpdate is called when any of the coupled probabilities change.
	OnProbUpdate(pC, pL, pCL float64)

	// OnSojourn is called with the sojourn time of each packet handed to
	// the downstream.
	OnSojourn(class Class, sojourn sim.Clock)

	// OnMark is called when a packet is CE marked.
	OnMark(class Class)

	// OnDrop is called when a packet is dropped.
	OnDrop(reason DropReason)

	// OnBytesInQueue is called with the combined bytes of the two live
	// queues after each enqueue and after each packet handed to the
	// downstream.  AQM drops and moves to the staging queues do not call it.
	OnBytesInQueue(bytes sim.Bytes)
}

// NopTracer is a Tracer that discards all events.  Embed it to implement a
// subset of the Tracer methods.
type NopTracer struct{}

func (NopTracer) OnProbUpdate(pC, pL, pCL float64)         {}
func (NopTracer) OnSojourn(class Class, sojourn sim.Clock) {}
func (NopTracer) OnMark(class Class)                       {}
func (NopTracer) OnDrop(reason DropReason)                 {}
func (NopTracer) OnBytesInQueue(bytes sim.Bytes)           {}

// Downstream reports the state of the downstream transmit queue.
type Downstream interface {
	// Stopped returns true while the downstream transmit queue is stopped,
	// meaning the batch computed by PendingDequeue defines the next
	// transmission.
	Stopped() bool
}
