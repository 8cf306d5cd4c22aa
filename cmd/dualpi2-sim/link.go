// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package main

import (
	"github.com/heistp/dualpi2"
	"github.com/heistp/dualpi2/sim"
)

// wifiFrameOverhead is the per-packet framing overhead used to budget the
// aggregation buffer, matching the queue disc's accounting.
const wifiFrameOverhead = 38

// Link drains the queue disc at the configured bitrate.  In aggregation
// mode it behaves like an A-MPDU building Wi-Fi MAC: it stops its transmit
// queue, announces the buffer byte budget through PendingDequeue, then
// drains and transmits the staged batch as one unit.
type Link struct {
	disc     *dualpi2.DualPi2
	rate     sim.Bitrate
	schedule []RateAt
	agg      Aggregation
	clock    *clockSource
	busy     bool
	stopped  bool
}

// NewLink returns a new Link.  The queue disc is set afterwards with
// SetDisc, since its config needs the Link as its Downstream.
func NewLink(rate sim.Bitrate, schedule []RateAt, agg Aggregation,
	clock *clockSource) *Link {
	return &Link{
		rate:     rate,
		schedule: schedule,
		agg:      agg,
		clock:    clock,
	}
}

// SetDisc sets the queue disc.
func (l *Link) SetDisc(disc *dualpi2.DualPi2) {
	l.disc = disc
}

// Stopped implements dualpi2.Downstream.
func (l *Link) Stopped() bool {
	return l.stopped
}

// rateChange carries a scheduled rate change.
type rateChange struct {
	rate sim.Bitrate
}

// txDone carries a transmitted batch.
type txDone struct {
	items []dualpi2.Item
}

// Start implements sim.Starter.
func (l *Link) Start(node sim.Node) error {
	if err := l.disc.Start(node); err != nil {
		return err
	}
	for _, r := range l.schedule {
		node.Timer(sim.Clock(r.At), rateChange{sim.Bitrate(r.Rate)})
	}
	return nil
}

// Handle implements sim.Handler.
func (l *Link) Handle(payload any, node sim.Node) error {
	l.clock.now = node.Now()
	l.disc.Enqueue(payload.(dualpi2.Item), node)
	if !l.busy {
		l.transmit(node)
	}
	return nil
}

// Ding implements sim.Dinger.
func (l *Link) Ding(data any, node sim.Node) error {
	l.clock.now = node.Now()
	switch v := data.(type) {
	case dualpi2.Tick:
		l.disc.OnTick(node)
	case rateChange:
		l.rate = v.rate
	case txDone:
		for _, it := range v.items {
			node.Send(it)
		}
		l.busy = false
		l.transmit(node)
	}
	return nil
}

// transmit starts the next transmission, if any.
func (l *Link) transmit(node sim.Node) {
	if l.agg.Enabled {
		l.transmitAggregate(node)
		return
	}
	it := l.disc.Dequeue(node)
	if it == nil {
		return
	}
	l.busy = true
	node.Timer(sim.TransferTime(l.rate, it.Size()),
		txDone{[]dualpi2.Item{it}})
}

// transmitAggregate builds and transmits one aggregate batch.
func (l *Link) transmitAggregate(node sim.Node) {
	limit := sim.Bytes(l.agg.BufferLimit)
	l.stopped = true
	l.disc.PendingDequeue(limit, node)
	var items []dualpi2.Item
	var framed sim.Bytes
	for {
		it := l.disc.Peek()
		if it == nil {
			break
		}
		if framed+it.Size()+wifiFrameOverhead > limit {
			break
		}
		// the dequeued item can differ from the peeked one if the AQM drops
		// from a live queue, so account for the item actually returned
		if it = l.disc.Dequeue(node); it == nil {
			break
		}
		items = append(items, it)
		framed += it.Size() + wifiFrameOverhead
	}
	l.stopped = false
	if len(items) == 0 {
		return
	}
	l.busy = true
	node.Timer(sim.TransferTime(l.rate, framed), txDone{items})
}

// Stop implements sim.Stopper.
func (l *Link) Stop(node sim.Node) error {
	s := l.disc.Stats()
	node.Logf("queue disc: enqueued %d dequeued %d marks %d "+
		"drops forced %d classic %d l4s %d",
		s.Enqueued, s.Dequeued, s.Marks,
		s.ForcedDrops, s.ClassicDrops, s.L4sDrops)
	return l.disc.Close()
}
