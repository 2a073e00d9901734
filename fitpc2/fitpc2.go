// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fitpc2

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/fitpc2tz/pci"
	"github.com/GermanBionicSystems/fitpc2tz/thermal"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

const (
	// Registers of the host bridge configuration space.
	_PORT5_MCR uint16 = 0xd0
	_PORT5_MDR uint16 = 0xd4

	_B0_INIT uint32 = 0xffffffff
	_B0_EXIT uint32 = 0x00000000

	// Arm port 5 register B0 for write with the data register.
	_CMD_ARM uint32 = 0xe004b000
	// Select port 4 register B1 for read.
	_CMD_SELECT uint32 = 0xd004b100

	_TEMP1_MASK  uint32 = 0x000000ff
	_TEMP1_SHIFT        = 0
	_TEMP2_MASK  uint32 = 0x0000ff00
	_TEMP2_SHIFT        = 8

	settleDelay = 100 * time.Millisecond

	// NumSensors is the number of sensors the chipset exposes.
	NumSensors = 2

	// CriticalTemperature is the critical and trip temperature of both
	// sensors.
	CriticalTemperature physic.Temperature = physic.ZeroCelsius + 119*physic.Kelvin

	// Extremes of the calibration curve.
	MinimumTemperature physic.Temperature = physic.ZeroCelsius + 25*physic.Kelvin
	MaximumTemperature physic.Temperature = physic.ZeroCelsius + 127*physic.Kelvin
)

var (
	// ErrDeviceNotFound is returned by reads when the host bridge is absent.
	ErrDeviceNotFound = errors.New("fitpc2: device not found")
	// ErrInvalidSensor is returned for sensor indexes other than 0 and 1.
	ErrInvalidSensor = errors.New("fitpc2: invalid sensor index")
)

// Convert applies the vendor calibration curve to a raw sensor byte and
// returns degrees Celsius.
//
// The curve is fixed point; each term is truncated on its own, which matters
// for some raw values.
func Convert(raw uint8) int {
	t := int32(raw)
	c1 := 1680 * t * t / 1000000
	c2 := 82652 * t / 100000
	return int(c1 - c2 + 127)
}

// Split returns the raw bytes of sensor 0 and sensor 1 from the combined
// register value.
func Split(reg uint32) (uint8, uint8) {
	return uint8((reg & _TEMP1_MASK) >> _TEMP1_SHIFT), uint8((reg & _TEMP2_MASK) >> _TEMP2_SHIFT)
}

func toTemperature(raw uint8) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(Convert(raw))*physic.Kelvin
}

// channel serializes the indirect register transaction.
type channel struct {
	mu sync.Mutex
	d  pci.Dev
}

// readCombined runs one unlock, select, read, relock transaction and returns
// the data register holding both raw sensor bytes.
//
// On a bus error the exit writes are still attempted so the sideband is left
// at rest.
func (c *channel) readCombined() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d == nil {
		return 0, ErrDeviceNotFound
	}
	if err := c.d.WriteConfig32(_PORT5_MDR, _B0_INIT); err != nil {
		return 0, c.abort(err)
	}
	if err := c.d.WriteConfig32(_PORT5_MCR, _CMD_ARM); err != nil {
		return 0, c.abort(err)
	}
	sleep(settleDelay)
	if err := c.d.WriteConfig32(_PORT5_MCR, _CMD_SELECT); err != nil {
		return 0, c.abort(err)
	}
	reg, err := c.d.ReadConfig32(_PORT5_MDR)
	if err != nil {
		return 0, c.abort(err)
	}
	if err := c.exit(); err != nil {
		return 0, fmt.Errorf("fitpc2: exit sequence: %w", err)
	}
	return reg, nil
}

func (c *channel) exit() error {
	err := c.d.WriteConfig32(_PORT5_MDR, _B0_EXIT)
	if err2 := c.d.WriteConfig32(_PORT5_MCR, _CMD_ARM); err == nil {
		err = err2
	}
	return err
}

func (c *channel) abort(err error) error {
	_ = c.exit()
	return fmt.Errorf("fitpc2: %s: %w", c.d, err)
}

func (c *channel) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d == nil {
		return nil
	}
	err := c.d.Close()
	c.d = nil
	return err
}

// Dev is a handle to the fit-PC2 chipset temperature sensors.
type Dev struct {
	ch      channel
	sensors [NumSensors]Sensor
}

// New returns a Dev that reads the sensors through d.
//
// d may be nil when the host bridge was not found; every read then fails with
// ErrDeviceNotFound. The Dev takes ownership of d and closes it on Halt.
func New(d pci.Dev) *Dev {
	dev := &Dev{ch: channel{d: d}}
	for i := range dev.sensors {
		dev.sensors[i] = Sensor{dev: dev, index: i}
	}
	return dev
}

// Sensor returns the logical sensor i.
func (d *Dev) Sensor(i int) (*Sensor, error) {
	if i < 0 || i >= NumSensors {
		return nil, fmt.Errorf("%w %d", ErrInvalidSensor, i)
	}
	return &d.sensors[i], nil
}

// ReadAll returns both sensors from one register transaction.
func (d *Dev) ReadAll() ([NumSensors]physic.Temperature, error) {
	var out [NumSensors]physic.Temperature
	reg, err := d.ch.readCombined()
	if err != nil {
		return out, err
	}
	t0, t1 := Split(reg)
	out[0] = toTemperature(t0)
	out[1] = toTemperature(t1)
	return out, nil
}

func (d *Dev) String() string {
	d.ch.mu.Lock()
	defer d.ch.mu.Unlock()
	if d.ch.d == nil {
		return "fitpc2{absent}"
	}
	return "fitpc2{" + d.ch.d.String() + "}"
}

// Halt stops continuous sensing and releases the PCI device. Implements
// conn.Resource.
func (d *Dev) Halt() error {
	for i := range d.sensors {
		_ = d.sensors[i].Halt()
	}
	return d.ch.close()
}

// Sensor is one of the two logical sensors.
//
// Each Temperature call fetches a fresh combined reading; two back to back
// calls on different sensors may reflect different instants. Use Dev.ReadAll
// for a consistent pair.
type Sensor struct {
	dev   *Dev
	index int

	mu       sync.Mutex
	shutdown chan struct{}
}

// Index returns 0 or 1.
func (s *Sensor) Index() int {
	return s.index
}

// Temperature implements thermal.Ops.
func (s *Sensor) Temperature() (physic.Temperature, error) {
	reg, err := s.dev.ch.readCombined()
	if err != nil {
		return 0, err
	}
	t0, t1 := Split(reg)
	if s.index == 0 {
		return toTemperature(t0), nil
	}
	return toTemperature(t1), nil
}

// CriticalTemperature implements thermal.Ops.
func (s *Sensor) CriticalTemperature() (physic.Temperature, error) {
	return CriticalTemperature, nil
}

// TripTemperature implements thermal.Ops. Only trip 0 exists.
func (s *Sensor) TripTemperature(trip int) (physic.Temperature, error) {
	if trip != 0 {
		return 0, fmt.Errorf("%w %d", thermal.ErrInvalidTrip, trip)
	}
	return CriticalTemperature, nil
}

// TripType implements thermal.Ops. Trip 0 is active.
func (s *Sensor) TripType(trip int) (thermal.TripType, error) {
	if trip != 0 {
		return 0, fmt.Errorf("%w %d", thermal.ErrInvalidTrip, trip)
	}
	return thermal.Active, nil
}

// Sense implements physic.SenseEnv.
func (s *Sensor) Sense(env *physic.Env) error {
	t, err := s.Temperature()
	if err != nil {
		return err
	}
	env.Temperature = t
	return nil
}

// SenseContinuous implements physic.SenseEnv. To terminate the continuous
// read, call Halt().
//
// Read errors are skipped.
func (s *Sensor) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < settleDelay {
		return nil, fmt.Errorf("fitpc2: invalid duration %s; minimum %s", interval, settleDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown != nil {
		return nil, errors.New("fitpc2: already sensing continuously")
	}
	s.shutdown = make(chan struct{})
	ch := make(chan physic.Env, 16)
	go func(shutdown <-chan struct{}) {
		defer close(ch)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-shutdown:
				return
			case <-t.C:
				e := physic.Env{}
				if err := s.Sense(&e); err != nil {
					continue
				}
				select {
				case ch <- e:
				case <-shutdown:
					return
				default:
				}
			}
		}
	}(s.shutdown)
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (s *Sensor) Precision(env *physic.Env) {
	env.Temperature = physic.Kelvin
	env.Pressure = 0
	env.Humidity = 0
}

// Halt stops a SenseContinuous operation. Implements conn.Resource.
func (s *Sensor) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown != nil {
		close(s.shutdown)
		s.shutdown = nil
	}
	return nil
}

func (s *Sensor) String() string {
	return fmt.Sprintf("FITPC2-%d", s.index+1)
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Sensor{}
var _ thermal.Ops = &Sensor{}
