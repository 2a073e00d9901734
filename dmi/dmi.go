// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dmi identifies the running system from its DMI (SMBIOS) strings.
package dmi

import (
	"strings"

	"github.com/jaypipes/ghw"
)

// SysfsRoot is where Linux exposes the DMI identification strings.
const SysfsRoot = "/sys/class/dmi/id"

// Identity is the subset of the DMI strings used to match a board.
type Identity struct {
	SysVendor   string
	ProductName string
	BoardName   string
}

// Source returns the identity of the running system.
type Source interface {
	Identity() (Identity, error)
}

// Sysfs reads the identity from SysfsRoot through ghw.
type Sysfs struct {
	// Chroot is prepended to SysfsRoot when set.
	Chroot string
}

// Identity implements Source.
//
// Missing attributes are left empty; systems without DMI tables simply don't
// match anything.
func (s *Sysfs) Identity() (Identity, error) {
	opts := []*ghw.WithOption{ghw.WithDisableWarnings()}
	if s.Chroot != "" {
		opts = append(opts, ghw.WithChroot(s.Chroot))
	}
	p, err := ghw.Product(opts...)
	if err != nil {
		return Identity{}, err
	}
	b, err := ghw.Baseboard(opts...)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		SysVendor:   known(p.Vendor),
		ProductName: known(p.Name),
		BoardName:   known(b.Product),
	}, nil
}

// known maps ghw's placeholder for unreadable attributes to "".
func known(s string) string {
	if s = strings.TrimSpace(s); s == "unknown" {
		return ""
	}
	return s
}

// Static is a Source returning a fixed identity.
type Static Identity

// Identity implements Source.
func (s Static) Identity() (Identity, error) {
	return Identity(s), nil
}

// Match is one entry of a system table.
//
// Empty fields match anything. Non-empty fields match when the system string
// contains them.
type Match struct {
	Ident       string
	SysVendor   string
	ProductName string
	BoardName   string
}

// Matches reports whether id satisfies m.
func (m *Match) Matches(id Identity) bool {
	return field(id.SysVendor, m.SysVendor) &&
		field(id.ProductName, m.ProductName) &&
		field(id.BoardName, m.BoardName)
}

func field(have, want string) bool {
	return want == "" || strings.Contains(have, want)
}

// Check returns the first entry of table matching the system, or nil.
func Check(src Source, table []Match) (*Match, error) {
	id, err := src.Identity()
	if err != nil {
		return nil, err
	}
	for i := range table {
		if table[i].Matches(id) {
			return &table[i], nil
		}
	}
	return nil, nil
}

var _ Source = &Sysfs{}
var _ Source = Static{}
