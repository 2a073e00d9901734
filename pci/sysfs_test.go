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
	"path/filepath"
	"testing"

	upci "github.com/u-root/u-root/pkg/pci"
)

// fakeReader is a BusReader over a single device.
type fakeReader struct {
	p   *upci.PCI
	err error
}

func (f *fakeReader) Read(filters ...upci.Filter) (upci.Devices, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range filters {
		if !m(f.p) {
			return nil, nil
		}
	}
	return upci.Devices{f.p}, nil
}

// fakeBus creates one directory with a zeroed config file per device and a
// Sysfs reading them.
func fakeBus(t *testing.T, devs map[string]ID, broken ...string) (*Sysfs, string) {
	root := t.TempDir()
	readers := map[string]*fakeReader{}
	var names []string
	for name, id := range devs {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "config"), make([]byte, ConfigSize), 0o644); err != nil {
			t.Fatal(err)
		}
		readers[name] = &fakeReader{p: &upci.PCI{Addr: name, Vendor: id.Vendor, Device: id.Device, FullPath: dir}}
		names = append(names, name)
	}
	for _, name := range broken {
		readers[name] = &fakeReader{err: fmt.Errorf("%s/vendor: permission denied", name)}
		names = append(names, name)
	}
	s := &Sysfs{
		list: func() ([]string, error) { return names, nil },
		reader: func(name string) (upci.BusReader, error) {
			r, ok := readers[name]
			if !ok {
				return nil, fs.ErrNotExist
			}
			return r, nil
		},
	}
	return s, root
}

func TestSysfs_Find(t *testing.T) {
	s, root := fakeBus(t, map[string]ID{
		"0000:00:02.0": {VendorIntel, 0x8108},
		"0000:00:00.0": {VendorIntel, 0x8100},
		"0000:00:1f.0": {VendorIntel, 0x8100},
	})
	d, err := s.Find(ID{VendorIntel, 0x8100})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if str := d.String(); str != "pci(0000:00:00.0 8086:8100)" {
		t.Fatal(str)
	}
	if err := d.WriteConfig32(0xd4, 0x0000b2a1); err != nil {
		t.Fatal(err)
	}
	v, err := d.ReadConfig32(0xd4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x0000b2a1 {
		t.Fatalf("got 0x%x", v)
	}
	// Little endian on disk.
	b, err := os.ReadFile(filepath.Join(root, "0000:00:00.0", "config"))
	if err != nil {
		t.Fatal(err)
	}
	if b[0xd4] != 0xa1 || b[0xd5] != 0xb2 {
		t.Fatalf("unexpected bytes % x", b[0xd4:0xd8])
	}
}

func TestSysfs_Find_skips_unreadable(t *testing.T) {
	s, _ := fakeBus(t, map[string]ID{"0000:00:1f.0": {VendorIntel, 0x8100}}, "0000:00:00.0", "0000:00:02.0")
	d, err := s.Find(ID{VendorIntel, 0x8100})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if str := d.String(); str != "pci(0000:00:1f.0 8086:8100)" {
		t.Fatal(str)
	}
}

func TestSysfs_Find_not_found(t *testing.T) {
	s, _ := fakeBus(t, map[string]ID{"0000:00:02.0": {VendorIntel, 0x8108}, "power": {}}, "0000:00:00.0")
	if _, err := s.Find(ID{VendorIntel, 0x8100}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	s.list = func() ([]string, error) { return nil, &fs.PathError{Op: "open", Path: SysfsRoot, Err: fs.ErrNotExist} }
	if _, err := s.Find(ID{VendorIntel, 0x8100}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	errList := errors.New("permission denied")
	s.list = func() ([]string, error) { return nil, errList }
	if _, err := s.Find(ID{VendorIntel, 0x8100}); !errors.Is(err, errList) {
		t.Fatalf("expected the list error, got %v", err)
	}
}

func TestSysfs_offset_and_close(t *testing.T) {
	s, _ := fakeBus(t, map[string]ID{"0000:00:00.0": {VendorIntel, 0x8100}})
	d, err := s.Find(ID{VendorIntel, 0x8100})
	if err != nil {
		t.Fatal(err)
	}
	for _, off := range []uint16{0xd1, 0xfe, 0x100} {
		if _, err := d.ReadConfig32(off); !errors.Is(err, ErrOffset) {
			t.Errorf("0x%x: expected ErrOffset, got %v", off, err)
		}
		if err := d.WriteConfig32(off, 0); !errors.Is(err, ErrOffset) {
			t.Errorf("0x%x: expected ErrOffset, got %v", off, err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReadConfig32(0xd0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := d.WriteConfig32(0xd0, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
