// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pci gives access to the configuration space of PCI devices.
//
// Only 32 bit accesses to the legacy 256 bytes configuration header are
// supported, which is what chipset sideband interfaces hidden in the host
// bridge use.
package pci

import (
	"errors"
	"fmt"
)

// VendorIntel is the PCI vendor ID of Intel.
const VendorIntel uint16 = 0x8086

// ConfigSize is the size of the legacy configuration header.
const ConfigSize = 256

// SysfsRoot is where Linux exposes PCI devices.
const SysfsRoot = "/sys/bus/pci/devices"

var (
	// ErrNotFound is returned by Bus.Find when no device matches.
	ErrNotFound = errors.New("pci: device not found")
	// ErrOffset is returned for misaligned or out of range register offsets.
	ErrOffset = errors.New("pci: invalid config offset")
	// ErrClosed is returned when accessing a closed device.
	ErrClosed = errors.New("pci: device closed")
)

// ID is a vendor/device ID pair.
type ID struct {
	Vendor uint16
	Device uint16
}

func (i ID) String() string {
	return fmt.Sprintf("%04x:%04x", i.Vendor, i.Device)
}

// Addr is the location of a function on the PCI bus.
type Addr struct {
	Domain uint16
	Bus    uint8
	Slot   uint8
	Func   uint8
}

func (a Addr) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", a.Domain, a.Bus, a.Slot, a.Func)
}

// ParseAddr parses an address in the dddd:bb:ss.f form used by sysfs.
func ParseAddr(s string) (Addr, error) {
	var a Addr
	var fn uint8
	if _, err := fmt.Sscanf(s, "%x:%x:%x.%x", &a.Domain, &a.Bus, &a.Slot, &fn); err != nil {
		return Addr{}, fmt.Errorf("pci: invalid address %q: %w", s, err)
	}
	if a.Slot > 31 || fn > 7 {
		return Addr{}, fmt.Errorf("pci: invalid address %q", s)
	}
	a.Func = fn
	return a, nil
}

// Dev is an open handle to one device's configuration space.
//
// Values are transferred little-endian, as the bus does.
type Dev interface {
	fmt.Stringer
	// ReadConfig32 reads the 32 bit register at off.
	ReadConfig32(off uint16) (uint32, error)
	// WriteConfig32 writes v to the 32 bit register at off.
	WriteConfig32(off uint16, v uint32) error
	// Close releases the handle. It is safe to call more than once.
	Close() error
}

// Bus finds devices.
type Bus interface {
	// Find returns the first device matching id. The error wraps ErrNotFound
	// if there is none.
	Find(id ID) (Dev, error)
}

// CheckOffset returns ErrOffset if off cannot be used for a 32 bit access.
func CheckOffset(off uint16) error {
	if off%4 != 0 || off > ConfigSize-4 {
		return fmt.Errorf("%w 0x%x", ErrOffset, off)
	}
	return nil
}
