// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

// Command dualpi2-sim runs DualPI2 queue disc scenarios in the discrete
// event simulator.
package main

import (
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/heistp/dualpi2"
	"github.com/heistp/dualpi2/logging"
	"github.com/heistp/dualpi2/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var logger = logging.New("dualpi2-sim")

var app = &cli.App{
	Name:  "dualpi2-sim",
	Usage: "Run DualPI2 queue disc scenarios.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "scenario",
			Aliases:  []string{"s"},
			Usage:    "scenario yaml `file`",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "metrics",
			Usage: "serve Prometheus metrics on `addr` (e.g. :9090)",
		},
		&cli.StringFlag{
			Name:  "cpuprofile",
			Usage: "write a CPU profile to `file`",
		},
		&cli.StringFlag{
			Name:  "memprofile",
			Usage: "write a heap profile to `file`",
		},
	},
	Action: run,
}

func run(c *cli.Context) error {
	if p := c.String("cpuprofile"); p != "" {
		f, err := os.Create(p)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	s, err := LoadScenario(c.String("scenario"))
	if err != nil {
		return err
	}

	clock := &clockSource{}
	plots := newPlotTracer(clock, s.Plots)
	if err = plots.open(); err != nil {
		return err
	}
	defer plots.close()

	tracers := []dualpi2.Tracer{plots}
	if addr := c.String("metrics"); addr != "" {
		m := dualpi2.NewMetrics()
		if err = m.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		go func() {
			logger.Info("serving metrics", zap.String("addr", addr))
			http.ListenAndServe(addr, promhttp.Handler())
		}()
		tracers = append(tracers, m)
	}

	link := NewLink(sim.Bitrate(s.Rate), s.RateSchedule, s.Aggregation,
		clock)
	cfg := s.Dualpi2.config()
	cfg.Tracer = multiTracer(tracers)
	cfg.Downstream = link
	disc, err := dualpi2.New(cfg)
	if err != nil {
		return err
	}
	link.SetDisc(disc)

	h := []sim.Handler{
		NewSource(s.Flows, sim.Clock(s.Duration)),
		link,
		NewDelay(s.Flows),
		NewSink(s.Flows, s.Plots.Goodput),
	}
	if err = sim.NewSim(h).Run(); err != nil {
		return err
	}

	if p := c.String("memprofile"); p != "" {
		var f *os.File
		if f, err = os.Create(p); err != nil {
			return err
		}
		defer f.Close()
		runtime.GC()
		err = pprof.WriteHeapProfile(f)
	}
	return err
}

func main() {
	if err := app.Run(os.Args); err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
}

// multiTracer fans events out to multiple tracers.
type multiTracer []dualpi2.Tracer

func (m multiTracer) OnProbUpdate(pC, pL, pCL float64) {
	for _, t := range m {
		t.OnProbUpdate(pC, pL, pCL)
	}
}

func (m multiTracer) OnSojourn(class dualpi2.Class, sojourn sim.Clock) {
	for _, t := range m {
		t.OnSojourn(class, sojourn)
	}
}

func (m multiTracer) OnMark(class dualpi2.Class) {
	for _, t := range m {
		t.OnMark(class)
	}
}

func (m multiTracer) OnDrop(reason dualpi2.DropReason) {
	for _, t := range m {
		t.OnDrop(reason)
	}
}

func (m multiTracer) OnBytesInQueue(bytes sim.Bytes) {
	for _, t := range m {
		t.OnBytesInQueue(bytes)
	}
}
