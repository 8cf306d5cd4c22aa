// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"sort"
	"testing"
	"time"

	"github.com/heistp/dualpi2/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNode is a sim.Node with a manually advanced clock.
type testNode struct {
	now    sim.Clock
	timers []testTimer
	sent   []any
}

type testTimer struct {
	at   sim.Clock
	data any
}

func (n *testNode) Timer(delay sim.Clock, data any) {
	n.timers = append(n.timers, testTimer{n.now + delay, data})
}

func (n *testNode) Send(payload any) {
	n.sent = append(n.sent, payload)
}

func (n *testNode) Now() sim.Clock {
	return n.now
}

func (n *testNode) Logf(format string, a ...any) {
}

func (n *testNode) Shutdown() {
}

// advance moves the clock by the given duration.
func (n *testNode) advance(d time.Duration) {
	n.now += sim.Clock(d)
}

// recordingTracer records all Tracer events.
type recordingTracer struct {
	probC, probL, probCL float64
	sojourns             map[Class][]sim.Clock
	marks                map[Class]int
	drops                map[DropReason]int
	bytesInQueue         sim.Bytes
}

func newRecordingTracer() *recordingTracer {
	return &recordingTracer{
		sojourns: make(map[Class][]sim.Clock),
		marks:    make(map[Class]int),
		drops:    make(map[DropReason]int),
	}
}

func (t *recordingTracer) OnProbUpdate(pC, pL, pCL float64) {
	t.probC, t.probL, t.probCL = pC, pL, pCL
}

func (t *recordingTracer) OnSojourn(class Class, sojourn sim.Clock) {
	t.sojourns[class] = append(t.sojourns[class], sojourn)
}

func (t *recordingTracer) OnMark(class Class) {
	t.marks[class]++
}

func (t *recordingTracer) OnDrop(reason DropReason) {
	t.drops[reason]++
}

func (t *recordingTracer) OnBytesInQueue(bytes sim.Bytes) {
	t.bytesInQueue = bytes
}

// stoppedDownstream reports a fixed downstream queue state.
type stoppedDownstream bool

func (s stoppedDownstream) Stopped() bool {
	return bool(s)
}

func newDisc(t *testing.T, mod func(*Config)) (*DualPi2, *recordingTracer,
	*testNode) {
	cfg := DefaultConfig()
	tr := newRecordingTracer()
	cfg.Tracer = tr
	if mod != nil {
		mod(&cfg)
	}
	d, err := New(cfg)
	require.NoError(t, err)
	return d, tr, &testNode{}
}

func TestEnqueueClassification(t *testing.T) {
	d, _, node := newDisc(t, nil)
	for _, c := range []struct {
		ds  uint8
		l4s bool
	}{
		{0b00, false}, // Not-ECT
		{0b10, false}, // ECT(0)
		{0b01, true},  // ECT(1)
		{0b11, true},  // CE
	} {
		before := d.lq.len()
		ok := d.Enqueue(&Datagram{Len: 1000, DS: c.ds}, node)
		require.True(t, ok)
		if c.l4s {
			assert.Equal(t, before+1, d.lq.len(), "DS %#02x", c.ds)
		} else {
			assert.Equal(t, before, d.lq.len(), "DS %#02x", c.ds)
		}
	}
	assert.Equal(t, 2, d.cq.len())
	assert.Equal(t, 2, d.lq.len())
}

func TestEnqueueTailDrop(t *testing.T) {
	d, tr, node := newDisc(t, func(c *Config) {
		c.QueueLimit = 3000
	})
	p := make([]*Datagram, 3)
	for i := range p {
		p[i] = &Datagram{Len: 1400, Seq: i}
	}
	require.True(t, d.Enqueue(p[0], node))
	require.True(t, d.Enqueue(p[1], node))
	require.False(t, d.Enqueue(p[2], node))
	assert.Equal(t, uint64(1), d.Stats().ForcedDrops)
	assert.Equal(t, 1, tr.drops[ForcedDrop])

	require.Same(t, p[0], d.Dequeue(node))
	require.Same(t, p[1], d.Dequeue(node))
	require.Nil(t, d.Dequeue(node))
	s := d.Stats()
	assert.Equal(t, uint64(2), s.Dequeued)
	assert.Zero(t, s.ClassicDrops)
	assert.Zero(t, s.L4sDrops)
}

// TestPureClassic delivers a gentle Classic flow in order, unmarked and
// undropped, with the base probability staying near zero.
func TestPureClassic(t *testing.T) {
	d, _, node := newDisc(t, nil)
	var got []*Datagram
	// enqueue every 10 ms, dequeue every 12 ms, PI² update every 15 ms
	type event struct {
		at sim.Clock
		f  func(i int)
		i  int
	}
	var events []event
	for i := 0; i < 10; i++ {
		i := i
		events = append(events,
			event{sim.Clock(i) * sim.Clock(10*time.Millisecond), func(i int) {
				require.True(t, d.Enqueue(&Datagram{Len: 1000, Seq: i}, node))
			}, i},
			event{sim.Clock(i) * sim.Clock(12*time.Millisecond), func(int) {
				if it := d.Dequeue(node); it != nil {
					got = append(got, it.(*Datagram))
				}
			}, i},
			event{sim.Clock(i) * sim.Clock(15*time.Millisecond), func(int) {
				d.update(node.now)
			}, i})
	}
	sort.SliceStable(events, func(a, b int) bool {
		return events[a].at < events[b].at
	})
	for _, e := range events {
		node.now = e.at
		e.f(e.i)
	}
	require.Len(t, got, 10)
	for i, p := range got {
		assert.Equal(t, i, p.Seq)
		assert.Equal(t, NotECT, p.ECN())
	}
	s := d.Stats()
	assert.Zero(t, s.Marks)
	assert.Zero(t, s.ClassicDrops)
	assert.Zero(t, s.ForcedDrops)
	assert.Less(t, d.baseProb, 0.05)
}

// TestL4sBurstMarking enqueues a burst and expects ramp marking driven by
// sojourn time, with the tail of the queue unmarked.
func TestL4sBurstMarking(t *testing.T) {
	d, _, node := newDisc(t, nil)
	node.now = sim.Clock(100 * time.Millisecond)
	for i := 0; i < 50; i++ {
		require.True(t, d.Enqueue(&Datagram{Len: 1500, DS: uint8(ECT1),
			Seq: i}, node))
	}
	var got []*Datagram
	for i := 0; i < 50; i++ {
		node.now = sim.Clock(110+i) * sim.Clock(time.Millisecond)
		it := d.Dequeue(node)
		require.NotNil(t, it)
		got = append(got, it.(*Datagram))
	}
	require.Nil(t, d.Dequeue(node))

	// All sojourn times are over minTh+range, so p_L is 1 for every packet
	// while more than one remains queued.  The recur counter makes the very
	// first packet miss (the counter reaches exactly 1), and LAQM is
	// suppressed for the last two (no more than one packet behind them).
	assert.Equal(t, ECT1, got[0].ECN())
	for i := 1; i < 48; i++ {
		assert.Equal(t, CE, got[i].ECN(), "packet %d", i)
	}
	assert.Equal(t, ECT1, got[48].ECN())
	assert.Equal(t, ECT1, got[49].ECN())
	assert.Equal(t, uint64(47), d.Stats().Marks)
}

// TestOverload drives the base probability to 1 and expects L4S packets to
// be dropped at the Classic probability rather than only marked.
func TestOverload(t *testing.T) {
	d, tr, node := newDisc(t, nil)
	for i := 0; i < 6; i++ {
		require.True(t, d.Enqueue(&Datagram{Len: 1500, DS: uint8(ECT1),
			Seq: i}, node))
	}
	node.now = sim.Clock(10 * time.Second)
	d.update(node.now)
	require.Equal(t, 1.0, d.baseProb)
	require.Equal(t, 1.0, d.pCL)
	require.Equal(t, 1.0, d.pC)

	first := d.Dequeue(node)
	require.NotNil(t, first)
	assert.Equal(t, CE, first.(*Datagram).ECN())
	assert.Nil(t, d.Dequeue(node))

	s := d.Stats()
	assert.Equal(t, uint64(5), s.L4sDrops)
	assert.Equal(t, uint64(1), s.Marks)
	assert.Equal(t, 5, tr.drops[UnforcedL4sDrop])
}

// TestClassicSafetyHeuristic never drops the last 2 MTU of Classic backlog,
// even at maximum drop probability.
func TestClassicSafetyHeuristic(t *testing.T) {
	d, _, node := newDisc(t, nil)
	require.True(t, d.Enqueue(&Datagram{Len: 1400}, node))
	require.True(t, d.Enqueue(&Datagram{Len: 1400}, node))
	node.now = sim.Clock(10 * time.Second)
	d.update(node.now)
	require.Equal(t, 1.0, d.pC)
	// 2800 bytes queued < 2*MTU after any pop, so both are delivered
	require.NotNil(t, d.Dequeue(node))
	require.NotNil(t, d.Dequeue(node))
	assert.Zero(t, d.Stats().ClassicDrops)
}

// TestClassicOverloadDrop drops Classic packets above the 2 MTU floor when
// pC is at its cap.
func TestClassicOverloadDrop(t *testing.T) {
	d, _, node := newDisc(t, nil)
	for i := 0; i < 10; i++ {
		require.True(t, d.Enqueue(&Datagram{Len: 1400, Seq: i}, node))
	}
	node.now = sim.Clock(10 * time.Second)
	d.update(node.now)
	require.Equal(t, 1.0, d.pC)
	// with pC pinned at its cap, every pop that leaves at least 2 MTU
	// (3000 B) behind it is dropped: packets 0-6 leave 12600..4200 B, and
	// packet 7 leaves 2800 B, so it is delivered
	it := d.Dequeue(node)
	require.NotNil(t, it)
	assert.Equal(t, 7, it.(*Datagram).Seq)
	assert.Equal(t, uint64(7), d.Stats().ClassicDrops)
}

func TestConservation(t *testing.T) {
	d, _, node := newDisc(t, func(c *Config) {
		c.QueueLimit = 20000
	})
	ecn := []uint8{0b00, 0b01, 0b10, 0b11}
	for i := 0; i < 40; i++ {
		d.Enqueue(&Datagram{Len: sim.Bytes(600 + 100*(i%7)),
			DS: ecn[i%len(ecn)], Seq: i}, node)
		node.advance(time.Millisecond)
	}
	for i := 0; i < 15; i++ {
		d.Dequeue(node)
		node.advance(time.Millisecond)
	}
	s := d.Stats()
	assert.Equal(t, s.Enqueued,
		s.Dequeued+s.ClassicDrops+s.L4sDrops+uint64(d.Len()))
}

func TestNotECTNeverMarked(t *testing.T) {
	p := &Datagram{Len: 100, DS: 0b00}
	assert.False(t, p.Mark())
	assert.Equal(t, NotECT, p.ECN())
	p.DS = uint8(ECT0)
	assert.True(t, p.Mark())
	assert.Equal(t, CE, p.ECN())
}

func TestPeek(t *testing.T) {
	d, _, node := newDisc(t, nil)
	require.Nil(t, d.Peek())
	l := &Datagram{Len: 100, DS: uint8(ECT1)}
	c := &Datagram{Len: 100}
	require.True(t, d.Enqueue(l, node))
	require.True(t, d.Enqueue(c, node))
	// live queues: Classic peeks first
	assert.Same(t, c, d.Peek())
	assert.Equal(t, 2, d.Len())
}

func TestClose(t *testing.T) {
	d, _, node := newDisc(t, nil)
	require.NoError(t, d.Start(node))
	require.Len(t, node.timers, 1)
	require.NoError(t, d.Close())
	require.Error(t, d.Close())
	// a tick after close must not re-arm the timer
	node.timers = nil
	d.OnTick(node)
	assert.Empty(t, node.timers)
}

func TestTickRearms(t *testing.T) {
	d, _, node := newDisc(t, nil)
	require.NoError(t, d.Start(node))
	require.Len(t, node.timers, 1)
	node.now = node.timers[0].at
	d.OnTick(node)
	require.Len(t, node.timers, 2)
	assert.Equal(t, node.now+sim.Clock(d.cfg.Tupdate), node.timers[1].at)
}
