// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"time"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"
)

const usage = `usage: fitpc2tz [-once] [-color | -nocolor] [-interval DURATION] [-n COUNT]
	[-redis ADDR] [-hash NAME] [-png FILE] [-chroot DIR]`

type config struct {
	interval time.Duration
	// count is the number of poll cycles; 0 runs until interrupted.
	count int
	once  bool
	// color is nil when it has to be detected from the terminal.
	color *bool
	redis string
	hash  string
	png   string
	// chroot is where the DMI strings are read from, for snapshots of
	// another machine.
	chroot string
}

func parseArgs(args []string) (*config, error) {
	flag, args := flags.New(args, "-once", "-color", "-nocolor")
	parm, args := parms.New(args, "-interval", "-n", "-redis", "-hash",
		"-png", "-chroot")
	if len(args) > 0 {
		return nil, fmt.Errorf("%v: unexpected\n%s", args, usage)
	}
	c := &config{
		interval: 5 * time.Second,
		once:     flag.ByName["-once"],
		redis:    parm.ByName["-redis"],
		hash:     "fitpc2",
		png:      parm.ByName["-png"],
		chroot:   parm.ByName["-chroot"],
	}
	if s := parm.ByName["-hash"]; len(s) > 0 {
		c.hash = s
	}
	if s := parm.ByName["-interval"]; len(s) > 0 {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("interval: %v", err)
		}
		if d < 100*time.Millisecond {
			return nil, fmt.Errorf("interval: %s is below 100ms", d)
		}
		c.interval = d
	}
	if s := parm.ByName["-n"]; len(s) > 0 {
		if _, err := fmt.Sscan(s, &c.count); err != nil {
			return nil, fmt.Errorf("n: %v", err)
		}
		if c.count < 0 {
			return nil, fmt.Errorf("n: %d is negative", c.count)
		}
	}
	switch on, off := flag.ByName["-color"], flag.ByName["-nocolor"]; {
	case on && off:
		return nil, fmt.Errorf("-color and -nocolor are exclusive\n%s", usage)
	case on || off:
		c.color = &on
	}
	if c.once {
		c.count = 1
	}
	return c, nil
}
