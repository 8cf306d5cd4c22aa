// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package main

import (
	"strconv"
	"time"

	"github.com/heistp/dualpi2"
	"github.com/heistp/dualpi2/sim"
	"github.com/heistp/dualpi2/xplot"
)

// goodputInterval is the averaging interval for the goodput plot.
const goodputInterval = sim.Clock(100 * time.Millisecond)

// Sink receives delivered packets and accounts goodput and marks per flow.
type Sink struct {
	plotGoodput bool
	count       []sim.Bytes
	countStart  []sim.Clock
	total       []sim.Bytes
	ce          []int
	received    []int
	goodput     xplot.Plot
}

// NewSink returns a new Sink for the given flows.
func NewSink(flows []FlowSpec, plotGoodput bool) *Sink {
	return &Sink{
		plotGoodput,
		make([]sim.Bytes, len(flows)),
		make([]sim.Clock, len(flows)),
		make([]sim.Bytes, len(flows)),
		make([]int, len(flows)),
		make([]int, len(flows)),
		xplot.Plot{
			Title: "Goodput",
			X: xplot.Axis{
				Label: "Time (S)",
			},
			Y: xplot.Axis{
				Label: "Goodput (Mbps)",
			},
		},
	}
}

// Start implements sim.Starter.
func (s *Sink) Start(node sim.Node) (err error) {
	if s.plotGoodput {
		err = s.goodput.Open("goodput.xpl")
	}
	return
}

// Handle implements sim.Handler.
func (s *Sink) Handle(payload any, node sim.Node) error {
	pkt := payload.(*dualpi2.Datagram)
	s.received[pkt.Flow]++
	s.total[pkt.Flow] += pkt.Len
	if pkt.ECN() == dualpi2.CE {
		s.ce[pkt.Flow]++
	}
	if s.plotGoodput {
		s.updateGoodput(pkt, node)
	}
	return nil
}

// updateGoodput plots the goodput per averaging interval.
func (s *Sink) updateGoodput(pkt *dualpi2.Datagram, node sim.Node) {
	s.count[pkt.Flow] += pkt.Len
	e := node.Now() - s.countStart[pkt.Flow]
	if e > goodputInterval {
		g := sim.CalcBitrate(s.count[pkt.Flow], time.Duration(e))
		s.goodput.Dot(node.Now(),
			strconv.FormatFloat(g.Mbps(), 'f', -1, 64), pkt.Flow)
		s.count[pkt.Flow] = 0
		s.countStart[pkt.Flow] = node.Now()
	}
}

// Stop implements sim.Stopper.
func (s *Sink) Stop(node sim.Node) error {
	for i := range s.total {
		r := sim.CalcBitrate(s.total[i], time.Duration(node.Now()))
		node.Logf("flow %d received %d packets, %d bytes (%.3f Mbps), %d CE",
			i, s.received[i], s.total[i], r.Mbps(), s.ce[i])
	}
	if s.plotGoodput {
		return s.goodput.Close()
	}
	return nil
}
