// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fitpc2tz exposes the two undocumented on-die temperature sensors of
// the CompuLab fit-PC2 as thermal zones.
//
// The driver itself lives in package fitpc2. The pci and dmi packages provide
// the Linux sysfs access it needs, and thermal is the small zone framework the
// sensors are registered with. The remaining packages are output surfaces for
// the readings. cmd/fitpc2tz is a daemon putting it together.
package fitpc2tz
