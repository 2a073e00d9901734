// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package pci

import "fmt"

// Sysfs is a Bus backed by the sysfs PCI tree. It is only available on linux.
type Sysfs struct{}

// Find implements Bus.
func (s *Sysfs) Find(id ID) (Dev, error) {
	return nil, fmt.Errorf("%w: %s (no sysfs)", ErrNotFound, id)
}

func (s *Sysfs) String() string {
	return "sysfs-pci"
}

var _ Bus = &Sysfs{}
