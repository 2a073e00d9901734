// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package thermal is a minimal thermal zone framework.
//
// Drivers implement Ops and register one Zone per sensor with a Manager. The
// Manager then polls every zone on its own schedule.
package thermal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

// TripType is the kind of action a trip point asks for.
type TripType int

const (
	Active TripType = iota
	Passive
	Hot
	Critical
)

func (t TripType) String() string {
	switch t {
	case Active:
		return "active"
	case Passive:
		return "passive"
	case Hot:
		return "hot"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("TripType(%d)", int(t))
	}
}

var (
	// ErrInvalidTrip is returned by Ops for trip indexes a zone doesn't have.
	ErrInvalidTrip = errors.New("thermal: invalid trip point")
	// ErrExists is returned when registering a zone name twice.
	ErrExists = errors.New("thermal: zone already registered")
	// ErrNotRegistered is returned when unregistering an unknown zone.
	ErrNotRegistered = errors.New("thermal: zone not registered")
)

// Ops is implemented by thermal zone drivers.
type Ops interface {
	// Temperature returns the current temperature. It may block.
	Temperature() (physic.Temperature, error)
	// CriticalTemperature returns the temperature at which the system must
	// shut down.
	CriticalTemperature() (physic.Temperature, error)
	// TripTemperature returns the temperature of the trip point.
	TripTemperature(trip int) (physic.Temperature, error)
	// TripType returns the type of the trip point.
	TripType(trip int) (TripType, error)
}

// Zone is a registered thermal zone.
type Zone struct {
	ID    int
	Type  string
	Trips int

	ops Ops
}

func (z *Zone) String() string {
	return fmt.Sprintf("thermal_zone%d(%s)", z.ID, z.Type)
}

// Ops returns the driver backing the zone.
func (z *Zone) Ops() Ops {
	return z.ops
}

// Read polls the zone once.
//
// A failed temperature read is reported in Reading.Err; the thresholds are
// still filled in when available.
func (z *Zone) Read() Reading {
	r := Reading{Zone: z}
	r.Temperature, r.Err = z.ops.Temperature()
	r.At = now()
	if c, err := z.ops.CriticalTemperature(); err == nil {
		r.Critical = c
	}
	if z.Trips > 0 {
		if t, err := z.ops.TripTemperature(0); err == nil {
			r.Trip = t
		}
	}
	return r
}

// Reading is the result of polling one zone.
type Reading struct {
	Zone        *Zone
	Temperature physic.Temperature
	Trip        physic.Temperature
	Critical    physic.Temperature
	Err         error
	At          time.Time
}

// Tripped reports whether the reading reached the first trip point.
func (r Reading) Tripped() bool {
	return r.Err == nil && r.Trip != 0 && r.Temperature >= r.Trip
}

func (r Reading) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: unavailable: %v", r.Zone, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Zone, r.Temperature)
}

// Manager keeps track of registered zones.
//
// The zero value is ready to use.
type Manager struct {
	mu    sync.Mutex
	next  int
	zones map[int]*Zone
}

// Register adds a zone named name, with trips trip points, backed by ops.
func (m *Manager) Register(name string, trips int, ops Ops) (*Zone, error) {
	if name == "" {
		return nil, errors.New("thermal: empty zone name")
	}
	if trips < 0 {
		return nil, fmt.Errorf("thermal: %s: invalid trip count %d", name, trips)
	}
	if ops == nil {
		return nil, fmt.Errorf("thermal: %s: no ops", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, z := range m.zones {
		if z.Type == name {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
	}
	if m.zones == nil {
		m.zones = map[int]*Zone{}
	}
	z := &Zone{ID: m.next, Type: name, Trips: trips, ops: ops}
	m.next++
	m.zones[z.ID] = z
	return z, nil
}

// Unregister removes z.
func (m *Manager) Unregister(z *Zone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z == nil || m.zones[z.ID] != z {
		return ErrNotRegistered
	}
	delete(m.zones, z.ID)
	return nil
}

// Zones returns the registered zones sorted by ID.
func (m *Manager) Zones() []*Zone {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Zone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReadAll polls every zone concurrently and returns the readings in zone
// order.
func (m *Manager) ReadAll() []Reading {
	zones := m.Zones()
	out := make([]Reading, len(zones))
	var wg sync.WaitGroup
	for i, z := range zones {
		wg.Add(1)
		go func(i int, z *Zone) {
			defer wg.Done()
			out[i] = z.Read()
		}(i, z)
	}
	wg.Wait()
	return out
}

// Poll calls ReadAll immediately and then every interval, handing each
// reading to fn, until ctx is done.
//
// Cancellation is only observed between polls; a zone read in progress runs
// to completion.
func (m *Manager) Poll(ctx context.Context, interval time.Duration, fn func(Reading)) error {
	if interval <= 0 {
		return fmt.Errorf("thermal: invalid poll interval %s", interval)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		for _, r := range m.ReadAll() {
			fn(r)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

var now = time.Now
