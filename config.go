// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package dualpi2

import (
	"errors"
	"fmt"
	"time"

	"github.com/heistp/dualpi2/sim"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// minMtu is the RFC 791 minimum datagram size a host must accept.
const minMtu = 68

// defaultMtu is used when Mtu is left zero and there is no device to read
// it from.
const defaultMtu = 1500

// Config holds the queue disc parameters.  The zero value is not valid; use
// DefaultConfig as a starting point.
type Config struct {
	// Mtu is the device MTU in bytes, used by the 2-MTU Classic drop safety
	// heuristic.  Zero resolves to 1500.
	Mtu sim.Bytes

	// Alpha is the PI² gain on the delay error, in Hz.
	Alpha float64

	// Beta is the PI² gain on the delay change, in Hz.
	Beta float64

	// Tupdate is the PI² update period.
	Tupdate time.Duration

	// QueueLimit is the shared byte limit across both queues.
	QueueLimit sim.Bytes

	// Target is the Classic queueing delay target.
	Target time.Duration

	// MinTh is the LAQM marking threshold.
	MinTh time.Duration

	// Range is the LAQM marking ramp width.
	Range time.Duration

	// K is the Classic/L4S coupling factor.
	K float64

	// SchedulingWeight is the number of L4S quantums per Classic quantum in
	// the WDRR scheduler.
	SchedulingWeight float64

	// DrrQuantum is the WDRR base quantum in bytes.
	DrrQuantum sim.Bytes

	// DisableLaqm forces the LAQM output to zero.
	DisableLaqm bool

	// EnableWifiClassicLatencyEstimator selects the alternative Classic
	// latency estimate min(sojourn, bytes*Target/AggBufferLimit), fed by
	// samples taken at pending-dequeue time.
	EnableWifiClassicLatencyEstimator bool

	// AggBufferLimit is the aggregation buffer byte target used by the Wi-Fi
	// Classic latency estimator.  Required when the estimator is enabled.
	AggBufferLimit sim.Bytes

	// StartTime is the simulation time of the first PI² update.
	StartTime time.Duration

	// Log is the logger.  Defaults to the package logger.
	Log *zap.Logger

	// Tracer receives probability, sojourn, mark and drop events.  Defaults
	// to NopTracer.
	Tracer Tracer

	// Downstream reports the downstream transmit queue state to the
	// pending-dequeue protocol.  Optional; without it, PendingDequeue only
	// refreshes the latency estimator samples.
	Downstream Downstream
}

// DefaultConfig returns the default parameters.  The queue limit corresponds
// to 250 ms at 50 Mbps.
func DefaultConfig() Config {
	return Config{
		Mtu:              0,
		Alpha:            0.15,
		Beta:             3,
		Tupdate:          15 * time.Millisecond,
		QueueLimit:       1562500,
		Target:           15 * time.Millisecond,
		MinTh:            800 * time.Microsecond,
		Range:            400 * time.Microsecond,
		K:                2,
		SchedulingWeight: 9,
		DrrQuantum:       1500,
	}
}

// Validate checks the parameters, accumulating all faults.  It is called by
// New after MTU resolution, so a configuration error is fatal at
// construction.
func (c *Config) Validate() (err error) {
	if c.Mtu < minMtu {
		err = multierr.Append(err, fmt.Errorf(
			"mtu %d does not meet the RFC 791 minimum of %d", c.Mtu, minMtu))
	}
	if c.Tupdate <= 0 {
		err = multierr.Append(err, errors.New("tupdate must be positive"))
	}
	if c.QueueLimit <= 0 {
		err = multierr.Append(err, errors.New("queue-limit must be positive"))
	}
	if c.Target <= 0 {
		err = multierr.Append(err, errors.New("target must be positive"))
	}
	if c.MinTh < 0 {
		err = multierr.Append(err, errors.New("min-th may not be negative"))
	}
	if c.Range <= 0 {
		err = multierr.Append(err, errors.New("range must be positive"))
	}
	if c.K <= 0 {
		err = multierr.Append(err, errors.New("k must be positive"))
	}
	if c.SchedulingWeight < 1 {
		err = multierr.Append(err, errors.New(
			"scheduling-weight must be at least 1"))
	}
	if c.DrrQuantum <= 0 {
		err = multierr.Append(err, errors.New("drr-quantum must be positive"))
	}
	if c.EnableWifiClassicLatencyEstimator && c.AggBufferLimit == 0 {
		err = multierr.Append(err, errors.New(
			"agg-buffer-limit must be set when the Wi-Fi classic latency estimator is enabled"))
	}
	if c.StartTime < 0 {
		err = multierr.Append(err, errors.New("start-time may not be negative"))
	}
	return
}
