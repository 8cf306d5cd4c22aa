// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWdrrWeightRatio(t *testing.T) {
	w := wdrr{quantum: 1500, weight: 9}
	// both bands continuously backlogged with equal-sized packets
	var l, c int
	for i := 0; i < 1000; i++ {
		switch w.schedule(1500, 1500, true, true) {
		case bandL4S:
			l++
		case bandClassic:
			c++
		default:
			t.Fatal("no band selected with both backlogged")
		}
	}
	assert.Equal(t, 900, l)
	assert.Equal(t, 100, c)
}

func TestWdrrEmpty(t *testing.T) {
	w := wdrr{quantum: 1500, weight: 9}
	assert.Equal(t, bandNone, w.schedule(0, 0, true, true))
}

func TestWdrrSingleBand(t *testing.T) {
	w := wdrr{quantum: 1500, weight: 9}
	for i := 0; i < 10; i++ {
		require.Equal(t, bandClassic, w.schedule(1500, 0, true, true))
	}
	w = wdrr{quantum: 1500, weight: 9}
	for i := 0; i < 10; i++ {
		require.Equal(t, bandL4S, w.schedule(0, 1500, true, true))
	}
}

// TestWdrrEligibility excludes a backlogged band whose head-of-line packet
// does not fit the pending byte budget.
func TestWdrrEligibility(t *testing.T) {
	w := wdrr{quantum: 1500, weight: 9}
	for i := 0; i < 10; i++ {
		require.Equal(t, bandClassic, w.schedule(500, 1500, true, false))
	}
	w = wdrr{quantum: 1500, weight: 9}
	for i := 0; i < 10; i++ {
		require.Equal(t, bandL4S, w.schedule(1500, 500, false, true))
	}
}

// TestWdrrLargeClassic serves an oversized Classic packet once enough
// rounds accumulate deficit.
func TestWdrrLargeClassic(t *testing.T) {
	w := wdrr{quantum: 1500, weight: 9}
	got := w.schedule(6000, 0, true, true)
	assert.Equal(t, bandClassic, got)
	assert.Equal(t, bandClassic, w.schedule(3000, 0, true, true))
}
