// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import "github.com/heistp/dualpi2/sim"

// laqm is the native L4S AQM: a ramp marker returning a marking probability
// from the instantaneous L queue sojourn time.
type laqm struct {
	minTh    sim.Clock
	rng      sim.Clock
	disabled bool
}

// prob returns the marking probability for the given sojourn time: 0 at or
// below minTh, 1 at or above minTh+range, linear in between.
func (a laqm) prob(sojourn sim.Clock) float64 {
	if a.disabled {
		return 0
	}
	if sojourn >= a.minTh+a.rng {
		return 1
	}
	if sojourn > a.minTh {
		return (sojourn - a.minTh).Seconds() / a.rng.Seconds()
	}
	return 0
}
