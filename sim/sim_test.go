// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timerNode fires timers and records the order and times they ding.
type timerNode struct {
	fired []any
	at    []Clock
}

func (n *timerNode) Handle(payload any, node Node) error {
	return nil
}

func (n *timerNode) Start(node Node) error {
	node.Timer(Clock(3*time.Millisecond), 3)
	node.Timer(Clock(1*time.Millisecond), 1)
	node.Timer(Clock(2*time.Millisecond), 2)
	return nil
}

func (n *timerNode) Ding(data any, node Node) error {
	n.fired = append(n.fired, data)
	n.at = append(n.at, node.Now())
	if len(n.fired) == 3 {
		node.Shutdown()
	}
	return nil
}

func TestTimerOrder(t *testing.T) {
	h := &timerNode{}
	s := NewSim([]Handler{h})
	require.NoError(t, s.Run())
	assert.Equal(t, []any{1, 2, 3}, h.fired)
	assert.Equal(t, []Clock{
		Clock(1 * time.Millisecond),
		Clock(2 * time.Millisecond),
		Clock(3 * time.Millisecond),
	}, h.at)
}

// pitcher sends payloads to the next node.
type pitcher struct {
	n int
}

func (p *pitcher) Start(node Node) error {
	node.Timer(Clock(time.Millisecond), nil)
	return nil
}

func (p *pitcher) Ding(data any, node Node) error {
	node.Send(p.n)
	p.n++
	if p.n < 3 {
		node.Timer(Clock(time.Millisecond), nil)
	}
	return nil
}

func (p *pitcher) Handle(payload any, node Node) error {
	return nil
}

// catcher records received payloads.
type catcher struct {
	got []any
}

func (c *catcher) Handle(payload any, node Node) error {
	c.got = append(c.got, payload)
	if len(c.got) == 3 {
		node.Shutdown()
	}
	return nil
}

func TestTransmit(t *testing.T) {
	p := &pitcher{}
	c := &catcher{}
	s := NewSim([]Handler{p, c})
	require.NoError(t, s.Run())
	assert.Equal(t, []any{0, 1, 2}, c.got)
}

func TestDeadlock(t *testing.T) {
	s := NewSim([]Handler{&catcher{}})
	assert.Error(t, s.Run())
}

func TestUnits(t *testing.T) {
	assert.Equal(t, 1.0, (1 * Mbps).Mbps())
	assert.Equal(t, Bitrate(8000), CalcBitrate(1000, time.Second))
	assert.Equal(t, Clock(time.Second), TransferTime(8000, 1000))
	assert.Equal(t, Clock(2*time.Second),
		Clock(time.Second).MultiplyScaled(Clock(2*time.Second)))
}
