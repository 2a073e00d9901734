// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fitpc2

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/fitpc2tz/dmi"
	"github.com/GermanBionicSystems/fitpc2tz/pci"
	"github.com/GermanBionicSystems/fitpc2tz/thermal"
	"periph.io/x/conn/v3/driver"
)

// Alias is the modalias of the boards this driver supports.
const Alias = "dmi:*:svnCompuLab:SBC-FITPC2:*:SBC-FITPC2:*"

// DeviceID is the host bridge the sensors are read from.
var DeviceID = pci.ID{Vendor: pci.VendorIntel, Device: 0x8100}

// Systems lists the supported boards.
var Systems = []dmi.Match{
	{
		Ident:       "SBC-FITPC2",
		SysVendor:   "CompuLab",
		ProductName: "SBC-FITPC2",
		BoardName:   "SBC-FITPC2",
	},
}

// ZoneNames are the names the two sensors are registered under.
var ZoneNames = [NumSensors]string{"FITPC2-1", "FITPC2-2"}

var (
	// ErrUnsupported is returned by Init on other systems than a fit-PC2.
	ErrUnsupported = errors.New("fitpc2: unsupported platform")
	// ErrBusy is returned by Init when a zone can't be registered.
	ErrBusy = errors.New("fitpc2: zone registration failed")
)

// Opts are the collaborators of Init. Nil fields use the sysfs defaults.
type Opts struct {
	DMI dmi.Source
	Bus pci.Bus
	// Logf, when set, receives informational messages.
	Logf func(format string, v ...interface{})
}

// Driver is the fit-PC2 thermal driver: the Dev plus its two registered
// zones.
type Driver struct {
	Dev *Dev

	mu    sync.Mutex
	zones *thermal.Manager
	tz    [NumSensors]*thermal.Zone
}

// Init checks the board identity, opens the host bridge and registers both
// sensors with zones.
//
// It returns ErrUnsupported without touching the PCI bus when the system isn't
// a fit-PC2. A missing host bridge isn't fatal; the zones are registered and
// report ErrDeviceNotFound on every read. On ErrBusy nothing stays registered.
func Init(zones *thermal.Manager, opts *Opts) (*Driver, error) {
	if opts == nil {
		opts = &Opts{}
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	src := opts.DMI
	if src == nil {
		src = &dmi.Sysfs{}
	}
	m, err := dmi.Check(src, Systems)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if m == nil {
		return nil, ErrUnsupported
	}
	logf("found system model '%s'", m.Ident)

	bus := opts.Bus
	if bus == nil {
		bus = &pci.Sysfs{}
	}
	d, err := bus.Find(DeviceID)
	if err != nil {
		if !errors.Is(err, pci.ErrNotFound) {
			return nil, err
		}
		logf("%v", err)
		d = nil
	}

	drv := &Driver{Dev: New(d), zones: zones}
	for i := range drv.tz {
		z, err := zones.Register(ZoneNames[i], 1, &drv.Dev.sensors[i])
		if err != nil {
			_ = drv.Halt()
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		drv.tz[i] = z
	}
	return drv, nil
}

// Zones returns the registered zones, in sensor order.
func (d *Driver) Zones() []*thermal.Zone {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*thermal.Zone, 0, NumSensors)
	for _, z := range d.tz {
		if z != nil {
			out = append(out, z)
		}
	}
	return out
}

// Halt unregisters both zones and releases the device. Calling it again is a
// no-op.
func (d *Driver) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for i, z := range d.tz {
		if z == nil {
			continue
		}
		if err2 := d.zones.Unregister(z); err == nil {
			err = err2
		}
		d.tz[i] = nil
	}
	if err2 := d.Dev.Halt(); err == nil {
		err = err2
	}
	return err
}

func (d *Driver) String() string {
	return d.Dev.String()
}

// PeriphDriver runs Init as part of periph's host initialization.
//
// Register it with driverreg before calling host.Init(). On other boards it
// reports itself as skipped.
type PeriphDriver struct {
	zones *thermal.Manager
	opts  *Opts

	mu  sync.Mutex
	drv *Driver
}

// NewPeriphDriver returns a driver.Impl that registers the sensors with zones.
func NewPeriphDriver(zones *thermal.Manager, opts *Opts) *PeriphDriver {
	return &PeriphDriver{zones: zones, opts: opts}
}

func (p *PeriphDriver) String() string {
	return "fitpc2-thermal"
}

// Prerequisites implements driver.Impl.
func (p *PeriphDriver) Prerequisites() []string {
	return nil
}

// After implements driver.Impl.
func (p *PeriphDriver) After() []string {
	return nil
}

// Init implements driver.Impl.
func (p *PeriphDriver) Init() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drv != nil {
		return true, nil
	}
	drv, err := Init(p.zones, p.opts)
	if err != nil {
		return !errors.Is(err, ErrUnsupported), err
	}
	p.drv = drv
	return true, nil
}

// Driver returns the initialized driver, or nil if Init didn't succeed.
func (p *PeriphDriver) Driver() *Driver {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drv
}

var _ driver.Impl = &PeriphDriver{}
