// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/heistp/dualpi2"
	"github.com/heistp/dualpi2/sim"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from yaml strings like "15ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Clock returns the Duration as a sim.Clock.
func (d Duration) Clock() sim.Clock {
	return sim.Clock(d)
}

// FlowSpec describes one open-loop packet flow.
type FlowSpec struct {
	// Class is "classic" or "l4s".
	Class string `yaml:"class"`

	// ECN overrides the codepoint: "not-ect", "ect0", "ect1" or "ce".
	// Empty defaults to not-ect for classic flows and ect1 for l4s flows.
	ECN string `yaml:"ecn"`

	// Rate is the sending rate in bits per second.
	Rate int64 `yaml:"rate"`

	// Size is the packet size in bytes.
	Size int `yaml:"size"`

	// Delay is the one-way path delay.
	Delay Duration `yaml:"delay"`

	// Start and Stop bound the flow's active time.  A zero Stop means the
	// flow runs until the end of the scenario.
	Start Duration `yaml:"start"`
	Stop  Duration `yaml:"stop"`
}

// codepoint returns the flow's ECN codepoint.
func (f *FlowSpec) codepoint() (dualpi2.ECN, error) {
	switch f.ECN {
	case "":
		if f.Class == "l4s" {
			return dualpi2.ECT1, nil
		}
		return dualpi2.NotECT, nil
	case "not-ect":
		return dualpi2.NotECT, nil
	case "ect0":
		return dualpi2.ECT0, nil
	case "ect1":
		return dualpi2.ECT1, nil
	case "ce":
		return dualpi2.CE, nil
	}
	return 0, fmt.Errorf("unknown ecn codepoint %q", f.ECN)
}

// RateAt changes the link rate at the given time.
type RateAt struct {
	At   Duration `yaml:"at"`
	Rate int64    `yaml:"rate"`
}

// Aggregation configures the A-MPDU style aggregating link mode, which
// stops its transmit queue, announces the buffer byte budget through
// PendingDequeue, then drains and transmits the staged batch.
type Aggregation struct {
	Enabled     bool `yaml:"enabled"`
	BufferLimit int  `yaml:"buffer-limit"`
}

// Plots selects the xplot outputs.
type Plots struct {
	Sojourn bool `yaml:"sojourn"`
	Probs   bool `yaml:"probs"`
	Goodput bool `yaml:"goodput"`
}

// DiscParams is the yaml form of the queue disc parameters.  Fields left
// unset keep the dualpi2 defaults.
type DiscParams struct {
	Mtu              int      `yaml:"mtu"`
	Alpha            float64  `yaml:"alpha"`
	Beta             float64  `yaml:"beta"`
	Tupdate          Duration `yaml:"tupdate"`
	QueueLimit       int      `yaml:"queue-limit"`
	Target           Duration `yaml:"target"`
	MinTh            Duration `yaml:"min-th"`
	Range            Duration `yaml:"range"`
	K                float64  `yaml:"k"`
	SchedulingWeight float64  `yaml:"scheduling-weight"`
	DrrQuantum       int      `yaml:"drr-quantum"`
	DisableLaqm      bool     `yaml:"disable-laqm"`
	WifiEstimator    bool     `yaml:"wifi-classic-latency-estimator"`
	AggBufferLimit   int      `yaml:"agg-buffer-limit"`
	StartTime        Duration `yaml:"start-time"`
}

// config merges the set parameters over the defaults.
func (p *DiscParams) config() dualpi2.Config {
	c := dualpi2.DefaultConfig()
	if p.Mtu != 0 {
		c.Mtu = sim.Bytes(p.Mtu)
	}
	if p.Alpha != 0 {
		c.Alpha = p.Alpha
	}
	if p.Beta != 0 {
		c.Beta = p.Beta
	}
	if p.Tupdate != 0 {
		c.Tupdate = time.Duration(p.Tupdate)
	}
	if p.QueueLimit != 0 {
		c.QueueLimit = sim.Bytes(p.QueueLimit)
	}
	if p.Target != 0 {
		c.Target = time.Duration(p.Target)
	}
	if p.MinTh != 0 {
		c.MinTh = time.Duration(p.MinTh)
	}
	if p.Range != 0 {
		c.Range = time.Duration(p.Range)
	}
	if p.K != 0 {
		c.K = p.K
	}
	if p.SchedulingWeight != 0 {
		c.SchedulingWeight = p.SchedulingWeight
	}
	if p.DrrQuantum != 0 {
		c.DrrQuantum = sim.Bytes(p.DrrQuantum)
	}
	c.DisableLaqm = p.DisableLaqm
	c.EnableWifiClassicLatencyEstimator = p.WifiEstimator
	c.AggBufferLimit = sim.Bytes(p.AggBufferLimit)
	c.StartTime = time.Duration(p.StartTime)
	return c
}

// Scenario is the yaml scenario file.
type Scenario struct {
	Duration     Duration    `yaml:"duration"`
	Rate         int64       `yaml:"rate"`
	RateSchedule []RateAt    `yaml:"rate-schedule"`
	Aggregation  Aggregation `yaml:"aggregation"`
	Flows        []FlowSpec  `yaml:"flows"`
	Dualpi2      DiscParams  `yaml:"dualpi2"`
	Plots        Plots       `yaml:"plots"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Scenario{
		Duration: Duration(20 * time.Second),
		Rate:     int64(50 * sim.Mbps),
	}
	if err = yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err = s.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Scenario) validate() (err error) {
	if s.Duration <= 0 {
		err = multierr.Append(err, fmt.Errorf("duration must be positive"))
	}
	if s.Rate <= 0 {
		err = multierr.Append(err, fmt.Errorf("rate must be positive"))
	}
	if len(s.Flows) == 0 {
		err = multierr.Append(err, fmt.Errorf("at least one flow is required"))
	}
	for i := range s.Flows {
		f := &s.Flows[i]
		if f.Class != "classic" && f.Class != "l4s" {
			err = multierr.Append(err, fmt.Errorf(
				"flow %d: class must be classic or l4s", i))
		}
		if f.Rate <= 0 {
			err = multierr.Append(err, fmt.Errorf(
				"flow %d: rate must be positive", i))
		}
		if f.Size <= 0 {
			err = multierr.Append(err, fmt.Errorf(
				"flow %d: size must be positive", i))
		}
		if _, e := f.codepoint(); e != nil {
			err = multierr.Append(err, fmt.Errorf("flow %d: %w", i, e))
		}
	}
	if s.Aggregation.Enabled && s.Aggregation.BufferLimit <= 0 {
		err = multierr.Append(err, fmt.Errorf(
			"aggregation.buffer-limit must be positive"))
	}
	return
}
