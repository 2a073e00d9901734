// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.
//
// fitpc2 reads the two on-die temperature sensors of the CompuLab fit-PC2.
//
// The sensors sit behind an undocumented sideband interface of the Intel SCH
// US15W host bridge (PCI 8086:8100, usually at 0000:00:00.0). They are reached
// through an indirect command/data register pair in its configuration space.
// The access sequence mimics a shell script written by CompuLab; its control
// words are fixed protocol values.
//
// Both sensors are returned by a single register read, low byte first. Each
// raw byte goes through a vendor calibration curve to yield degrees Celsius.
//
// Every read sleeps 100ms to let the sideband settle, so a read of either
// sensor takes at least that long.
//
// Range: 25°C - 127°C
//
// Resolution: 1°C
package fitpc2
