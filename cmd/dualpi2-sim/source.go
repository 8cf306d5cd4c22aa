// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package main

import (
	"github.com/heistp/dualpi2"
	"github.com/heistp/dualpi2/sim"
)

// Source sends open-loop paced packets for each configured flow.
type Source struct {
	flows    []FlowSpec
	duration sim.Clock
	sent     []int
}

// NewSource returns a new Source.
func NewSource(flows []FlowSpec, duration sim.Clock) *Source {
	return &Source{
		flows,
		duration,
		make([]int, len(flows)),
	}
}

// flowTick paces one flow.
type flowTick struct {
	flow int
}

// endOfRun stops the simulation.
type endOfRun struct{}

// Start implements sim.Starter.
func (s *Source) Start(node sim.Node) error {
	for i, f := range s.flows {
		node.Timer(sim.Clock(f.Start), flowTick{i})
	}
	node.Timer(s.duration, endOfRun{})
	return nil
}

// Handle implements sim.Handler.
func (s *Source) Handle(payload any, node sim.Node) error {
	return nil
}

// Ding implements sim.Dinger.
func (s *Source) Ding(data any, node sim.Node) error {
	switch v := data.(type) {
	case endOfRun:
		node.Shutdown()
	case flowTick:
		f := &s.flows[v.flow]
		if f.Stop > 0 && node.Now() >= sim.Clock(f.Stop) {
			return nil
		}
		ecn, err := f.codepoint()
		if err != nil {
			return err
		}
		node.Send(&dualpi2.Datagram{
			Len:  sim.Bytes(f.Size),
			DS:   uint8(ecn),
			Flow: v.flow,
			Seq:  s.sent[v.flow],
			Sent: node.Now(),
		})
		s.sent[v.flow]++
		node.Timer(sim.TransferTime(sim.Bitrate(f.Rate),
			sim.Bytes(f.Size)), flowTick{v.flow})
	}
	return nil
}

// Stop implements sim.Stopper.
func (s *Source) Stop(node sim.Node) error {
	for i, n := range s.sent {
		node.Logf("flow %d sent %d packets", i, n)
	}
	return nil
}
