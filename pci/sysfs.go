// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package pci

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	upci "github.com/u-root/u-root/pkg/pci"
)

// Sysfs is a Bus backed by the sysfs PCI tree.
//
// Writing to the config file requires root.
type Sysfs struct {
	// list returns the device names under SysfsRoot.
	list func() ([]string, error)
	// reader returns a reader limited to the device named name.
	reader func(name string) (upci.BusReader, error)
}

// Find implements Bus.
//
// Devices are scanned in address order and the first match is returned.
// Devices whose attributes can't be read are skipped.
func (s *Sysfs) Find(id ID) (Dev, error) {
	list := s.list
	if list == nil {
		list = listSysfs
	}
	reader := s.reader
	if reader == nil {
		reader = openSysfs
	}
	names, err := list()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (no %s)", ErrNotFound, id, SysfsRoot)
		}
		return nil, err
	}
	sort.Strings(names)
	match := func(p *upci.PCI) bool {
		return p.Vendor == id.Vendor && p.Device == id.Device
	}
	for _, n := range names {
		addr, err := ParseAddr(n)
		if err != nil {
			continue
		}
		r, err := reader(n)
		if err != nil {
			continue
		}
		devs, err := r.Read(match)
		if err != nil || len(devs) == 0 {
			continue
		}
		return &sysfsDev{addr: addr, id: id, p: devs[0]}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Sysfs) String() string {
	return "sysfs-pci"
}

func listSysfs() ([]string, error) {
	entries, err := os.ReadDir(SysfsRoot)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func openSysfs(name string) (upci.BusReader, error) {
	return upci.NewBusReader(name)
}

// sysfsDev accesses the config file of one device.
type sysfsDev struct {
	addr Addr
	id   ID

	mu sync.Mutex
	p  *upci.PCI
}

func (d *sysfsDev) String() string {
	return fmt.Sprintf("pci(%s %s)", d.addr, d.id)
}

func (d *sysfsDev) ReadConfig32(off uint16) (uint32, error) {
	if err := CheckOffset(off); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.p == nil {
		return 0, ErrClosed
	}
	v, err := d.p.ReadConfigRegister(int64(off), 32)
	if err != nil {
		return 0, fmt.Errorf("pci: read %s at 0x%x: %w", d.addr, off, err)
	}
	return uint32(v), nil
}

func (d *sysfsDev) WriteConfig32(off uint16, v uint32) error {
	if err := CheckOffset(off); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.p == nil {
		return ErrClosed
	}
	if err := d.p.WriteConfigRegister(int64(off), 32, uint64(v)); err != nil {
		return fmt.Errorf("pci: write %s at 0x%x: %w", d.addr, off, err)
	}
	return nil
}

// Close is idempotent. The config file is only opened for each access.
func (d *sysfsDev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.p = nil
	return nil
}

var _ Bus = &Sysfs{}
var _ Dev = &sysfsDev{}
