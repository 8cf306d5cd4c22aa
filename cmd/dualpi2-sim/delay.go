// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package main

import (
	"github.com/heistp/dualpi2"
	"github.com/heistp/dualpi2/sim"
)

// Delay adds per-flow path delay.
type Delay struct {
	flowDelay []sim.Clock
	at        []pktTime
}

// pktTime stores a packet and a time, which we keep in the at field instead
// of scheduling a lot of timers.
type pktTime struct {
	packet *dualpi2.Datagram // packet to send
	time   sim.Clock         // simulation time to send it
}

// NewDelay returns a new Delay for the given flows.
func NewDelay(flows []FlowSpec) *Delay {
	d := make([]sim.Clock, len(flows))
	for i, f := range flows {
		d[i] = sim.Clock(f.Delay)
	}
	return &Delay{
		d,
		make([]pktTime, 0),
	}
}

// Handle implements sim.Handler.
func (d *Delay) Handle(payload any, node sim.Node) error {
	pkt := payload.(*dualpi2.Datagram)
	d.at = append(d.at, pktTime{pkt, node.Now() + d.flowDelay[pkt.Flow]})
	if len(d.at) == 1 {
		node.Timer(d.flowDelay[pkt.Flow], nil)
	}
	return nil
}

// Ding implements sim.Dinger.
func (d *Delay) Ding(data any, node sim.Node) error {
	var p pktTime
	p, d.at = d.at[0], d.at[1:]
	node.Send(p.packet)
	if len(d.at) > 0 {
		p = d.at[0]
		node.Timer(p.time-node.Now(), nil)
	}
	return nil
}
