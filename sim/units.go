// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package sim

import (
	"fmt"
	"time"
)

// Bytes is a number of bytes.
type Bytes int

// Bitrate is a bitrate in bits per second.
type Bitrate int64

const (
	Bps  Bitrate = 1
	Kbps         = 1000 * Bps
	Mbps         = 1000 * Kbps
	Gbps         = 1000 * Mbps
)

// Mbps returns the Bitrate in megabits per second.
func (b Bitrate) Mbps() float64 {
	return float64(b) / float64(Mbps)
}

func (b Bitrate) String() string {
	switch {
	case b >= Gbps:
		return fmt.Sprintf("%.3f Gbps", float64(b)/float64(Gbps))
	case b >= Mbps:
		return fmt.Sprintf("%.3f Mbps", float64(b)/float64(Mbps))
	case b >= Kbps:
		return fmt.Sprintf("%.3f Kbps", float64(b)/float64(Kbps))
	}
	return fmt.Sprintf("%d bps", int64(b))
}

// CalcBitrate returns the Bitrate for the given Bytes over the given duration.
func CalcBitrate(b Bytes, d time.Duration) Bitrate {
	if d == 0 {
		return 0
	}
	return Bitrate(float64(b) * 8 / d.Seconds())
}

// TransferTime returns the time to transfer the given Bytes at the given
// Bitrate.
func TransferTime(rate Bitrate, b Bytes) Clock {
	return Clock(time.Duration(float64(b) * 8 / float64(rate) * float64(time.Second)))
}
