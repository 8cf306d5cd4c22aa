// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecurZero(t *testing.T) {
	var count float64
	for i := 0; i < 100; i++ {
		assert.False(t, recur(&count, 0))
	}
	assert.Zero(t, count)
}

func TestRecurRate(t *testing.T) {
	for _, p := range []float64{0.1, 0.25, 0.3, 0.5, 0.9} {
		var count float64
		var triggers int
		n := 1000
		for i := 0; i < n; i++ {
			if recur(&count, p) {
				triggers++
			}
		}
		// deterministic smoothed triggering at rate p, modulo the one-bit
		// carry left in the counter
		assert.InDelta(t, float64(n)*p, float64(triggers), 1.5, "p=%v", p)
		assert.GreaterOrEqual(t, count, 0.0)
		assert.LessOrEqual(t, count, 1.0)
	}
}

func TestRecurAboveOne(t *testing.T) {
	count := 0.5
	assert.True(t, recur(&count, 1.5))
	assert.InDelta(t, 1.0, count, 1e-9)
}
