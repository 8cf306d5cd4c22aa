// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"fmt"

	"github.com/heistp/dualpi2/sim"
)

// band identifies the queue selected by the scheduler.
type band int

const (
	bandNone band = iota
	bandClassic
	bandL4S
)

func (b band) String() string {
	switch b {
	case bandClassic:
		return "Classic"
	case bandL4S:
		return "L4S"
	}
	return "none"
}

// maxSchedulerIterations bounds scheduler loops.  If a queue holds a packet,
// this many rounds is more than enough to select it, so exceeding the bound
// means broken deficit accounting.
const maxSchedulerIterations = 1000

// wdrr is a two-band weighted deficit round robin scheduler.  On each new
// round the L4S deficit grows by weight quantums and the Classic deficit by
// one.  A band stays in the round until its head-of-line packet exceeds its
// remaining deficit or its queue empties.
type wdrr struct {
	quantum  sim.Bytes
	weight   float64
	lDeficit sim.Bytes
	cDeficit sim.Bytes
	lActive  bool
	cActive  bool
}

// schedule selects the next band to serve given the head-of-line sizes of
// each queue (0 if empty) and the eligibility of each band.  The eligible
// flags let the pending-dequeue protocol exclude a head-of-line packet that
// would not fit in its remaining byte budget.
func (w *wdrr) schedule(cHol, lHol sim.Bytes, eligC, eligL bool) band {
	if cHol == 0 && lHol == 0 {
		return bandNone
	}
	if !eligC && !eligL {
		panic("wdrr: neither band is eligible")
	}
	for i := 0; i < maxSchedulerIterations; i++ {
		if !w.lActive && !w.cActive {
			w.lActive = true
			w.cActive = true
			w.lDeficit += sim.Bytes(float64(w.quantum) * w.weight)
			w.cDeficit += w.quantum
		}
		if eligL && lHol > 0 && lHol <= w.lDeficit {
			w.lDeficit -= lHol
			return bandL4S
		}
		w.lActive = false
		if lHol == 0 {
			w.lDeficit = 0
		}
		if eligC && cHol > 0 && cHol <= w.cDeficit {
			w.cDeficit -= cHol
			return bandClassic
		}
		w.cActive = false
		if cHol == 0 {
			w.cDeficit = 0
		}
	}
	panic(fmt.Sprintf("wdrr: no selection after %d rounds (cHol=%d lHol=%d)",
		maxSchedulerIterations, cHol, lHol))
}
