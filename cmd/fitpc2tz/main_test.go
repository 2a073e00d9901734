// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"testing"
	"time"

	"github.com/GermanBionicSystems/fitpc2tz/thermal"
	"periph.io/x/conn/v3/physic"
)

func TestParseArgs(t *testing.T) {
	c, err := parseArgs(nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.interval != 5*time.Second || c.hash != "fitpc2" || c.count != 0 || c.color != nil {
		t.Fatalf("unexpected defaults %#v", c)
	}

	c, err = parseArgs([]string{"-nocolor", "-interval", "1s", "-redis", "localhost:6379", "-hash=board", "-n", "3", "-png", "/tmp/tz.png", "-chroot", "/srv/snap"})
	if err != nil {
		t.Fatal(err)
	}
	if c.interval != time.Second || c.redis != "localhost:6379" || c.hash != "board" || c.count != 3 || c.png != "/tmp/tz.png" || c.chroot != "/srv/snap" {
		t.Fatalf("unexpected %#v", c)
	}
	if c.color == nil || *c.color {
		t.Fatal("expected color off")
	}

	c, err = parseArgs([]string{"-once", "-n", "7"})
	if err != nil {
		t.Fatal(err)
	}
	if c.count != 1 {
		t.Fatalf("count %d", c.count)
	}
}

func TestParseArgs_invalid(t *testing.T) {
	for _, args := range [][]string{
		{"extra"},
		{"-color", "-nocolor"},
		{"-interval", "soon"},
		{"-interval", "10ms"},
		{"-n", "-1"},
		{"-n", "many"},
	} {
		if _, err := parseArgs(args); err == nil {
			t.Errorf("%q: expected error", args)
		}
	}
}

type constant physic.Temperature

func (c constant) Temperature() (physic.Temperature, error) { return physic.Temperature(c), nil }
func (c constant) CriticalTemperature() (physic.Temperature, error) {
	return physic.ZeroCelsius + 119*physic.Kelvin, nil
}
func (c constant) TripTemperature(int) (physic.Temperature, error) {
	return physic.ZeroCelsius + 119*physic.Kelvin, nil
}
func (c constant) TripType(int) (thermal.TripType, error) { return thermal.Active, nil }

type recorder struct{ cycles [][]thermal.Reading }

func (r *recorder) Publish(readings []thermal.Reading) error {
	r.cycles = append(r.cycles, append([]thermal.Reading(nil), readings...))
	return nil
}

func TestRun(t *testing.T) {
	var zones thermal.Manager
	for _, name := range []string{"FITPC2-1", "FITPC2-2"} {
		if _, err := zones.Register(name, 1, constant(physic.ZeroCelsius+40*physic.Kelvin)); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recorder{}
	c := &config{interval: time.Millisecond, count: 3}
	if err := run(context.Background(), &zones, c, []sink{rec}); err != nil {
		t.Fatal(err)
	}
	if len(rec.cycles) != 3 {
		t.Fatalf("got %d cycles", len(rec.cycles))
	}
	for _, cycle := range rec.cycles {
		if len(cycle) != 2 || cycle[0].Zone.Type != "FITPC2-1" || cycle[1].Zone.Type != "FITPC2-2" {
			t.Fatalf("unexpected cycle %v", cycle)
		}
	}
}

func TestRun_noZone(t *testing.T) {
	var zones thermal.Manager
	if err := run(context.Background(), &zones, &config{interval: time.Second}, nil); err == nil {
		t.Fatal("expected error")
	}
}
