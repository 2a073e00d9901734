// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// fitpc2tz monitors the two on-die temperature sensors of a fit-PC2.
//
// Readings are printed to the terminal and, optionally, published to a redis
// hash and rendered into a PNG snapshot.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/GermanBionicSystems/fitpc2tz/dmi"
	"github.com/GermanBionicSystems/fitpc2tz/fitpc2"
	"github.com/GermanBionicSystems/fitpc2tz/gauge"
	"github.com/GermanBionicSystems/fitpc2tz/pci"
	"github.com/GermanBionicSystems/fitpc2tz/redispub"
	"github.com/GermanBionicSystems/fitpc2tz/termview"
	"github.com/GermanBionicSystems/fitpc2tz/thermal"
	"github.com/mattn/go-isatty"
	"github.com/platinasystems/log"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/host/v3"
)

// sink receives every complete poll cycle.
type sink interface {
	Publish(readings []thermal.Reading) error
}

type viewSink struct{ *termview.Dev }

func (v viewSink) Publish(readings []thermal.Reading) error { return v.Write(readings) }

type pngSink string

func (p pngSink) Publish(readings []thermal.Reading) error {
	return gauge.SavePNG(string(p), readings, nil)
}

func logf(format string, v ...interface{}) {
	log.Print("notice: ", fmt.Sprintf(format, v...))
}

// run polls zones and fans the readings out to sinks after each cycle.
//
// It returns nil once count cycles were done, or when ctx is canceled.
func run(ctx context.Context, zones *thermal.Manager, c *config, sinks []sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	n := len(zones.Zones())
	if n == 0 {
		return errors.New("no thermal zone registered")
	}
	var cycle []thermal.Reading
	cycles := 0
	err := zones.Poll(ctx, c.interval, func(r thermal.Reading) {
		cycle = append(cycle, r)
		if len(cycle) < n {
			return
		}
		for _, s := range sinks {
			if err := s.Publish(cycle); err != nil && !errors.Is(err, redispub.ErrRetryLater) {
				log.Print("warning: ", s, ": ", err)
			}
		}
		for _, r := range cycle {
			if r.Tripped() {
				log.Print("warning: ", r.Zone, ": ", r.Temperature, " reached trip point ", r.Trip)
			}
		}
		cycle = cycle[:0]
		if cycles++; c.count > 0 && cycles >= c.count {
			cancel()
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func mainImpl() error {
	c, err := parseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	if unix.Geteuid() != 0 {
		log.Print("warning: not running as root, the sensors can't be read")
	}

	var zones thermal.Manager
	p := fitpc2.NewPeriphDriver(&zones, &fitpc2.Opts{
		DMI:  &dmi.Sysfs{Chroot: c.chroot},
		Bus:  &pci.Sysfs{},
		Logf: logf,
	})
	driverreg.MustRegister(p)
	state, err := host.Init()
	if err != nil {
		return err
	}
	for _, f := range state.Failed {
		log.Print("warning: ", f)
	}
	for _, f := range state.Skipped {
		if f.D == p {
			return fmt.Errorf("%s: %v", f.D, f.Err)
		}
	}
	drv := p.Driver()
	if drv == nil {
		return errors.New("fitpc2: driver failed to initialize")
	}
	defer drv.Halt()

	color := isatty.IsTerminal(os.Stdout.Fd())
	if c.color != nil {
		color = *c.color
	}
	view := termview.New(&termview.Opts{Plain: !color})
	defer view.Halt()
	sinks := []sink{viewSink{view}}
	if len(c.redis) > 0 {
		pub := redispub.New(c.redis, c.hash)
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	if len(c.png) > 0 {
		sinks = append(sinks, pngSink(c.png))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	return run(ctx, &zones, c, sinks)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "fitpc2tz: %s.\n", err)
		os.Exit(1)
	}
}
