// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package termview prints thermal zone readings to a terminal using ANSI
// color codes.
package termview

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/GermanBionicSystems/fitpc2tz/gauge"
	"github.com/GermanBionicSystems/fitpc2tz/thermal"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options available for the view.
type Opts struct {
	// Width is the number of blocks per bar, defaults to 20.
	Width   int
	Palette *ansi256.Palette
	// Min and Max bound the bars; they default to 20°C and 130°C.
	Min physic.Temperature
	Max physic.Temperature
	// Plain disables colors.
	Plain bool

	_ struct{}
}

// Dev writes one line per poll.
type Dev struct {
	w       io.Writer
	opts    Opts
	palette ansi256.Palette

	buf bytes.Buffer
}

// New returns a Dev that writes to the console.
func New(opts *Opts) *Dev {
	return NewWriter(colorable.NewColorableStdout(), opts)
}

// NewWriter returns a Dev that writes to w.
func NewWriter(w io.Writer, opts *Opts) *Dev {
	d := &Dev{w: w}
	if opts != nil {
		d.opts = *opts
	}
	if d.opts.Width <= 0 {
		d.opts.Width = 20
	}
	if d.opts.Min == 0 {
		d.opts.Min = physic.ZeroCelsius + 20*physic.Kelvin
	}
	if d.opts.Max == 0 {
		d.opts.Max = physic.ZeroCelsius + 130*physic.Kelvin
	}
	p := d.opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	d.palette = *p
	return d
}

func (d *Dev) String() string {
	return "TermView"
}

// Write prints readings on one line.
func (d *Dev) Write(readings []thermal.Reading) error {
	d.buf.Reset()
	for i, r := range readings {
		if i != 0 {
			_, _ = d.buf.WriteString("  ")
		}
		d.bar(r)
	}
	_, _ = d.buf.WriteString("\n")
	_, err := d.buf.WriteTo(d.w)
	return err
}

func (d *Dev) bar(r thermal.Reading) {
	name := "?"
	if r.Zone != nil {
		name = r.Zone.Type
	}
	if r.Err != nil {
		fmt.Fprintf(&d.buf, "%s: n/a (%v)", name, r.Err)
		return
	}
	fmt.Fprintf(&d.buf, "%s: %3d°C ", name, int(math.Round(r.Temperature.Celsius())))
	lo, hi := d.opts.Min, d.opts.Max
	n := int(math.Round(float64(d.opts.Width) * ratio(r.Temperature, lo, hi)))
	if d.opts.Plain {
		for i := 0; i < d.opts.Width; i++ {
			if i < n {
				_ = d.buf.WriteByte('#')
			} else {
				_ = d.buf.WriteByte('.')
			}
		}
	} else {
		c := gauge.Heat(r.Temperature, lo, hi)
		for i := 0; i < n; i++ {
			_, _ = io.WriteString(&d.buf, d.palette.Block(c))
		}
		_, _ = d.buf.WriteString("\033[0m")
		for i := n; i < d.opts.Width; i++ {
			_ = d.buf.WriteByte(' ')
		}
	}
	if r.Tripped() {
		_, _ = d.buf.WriteString(" TRIP")
	}
}

func ratio(t, lo, hi physic.Temperature) float64 {
	if hi <= lo {
		return 0
	}
	return math.Max(0, math.Min(1, float64(t-lo)/float64(hi-lo)))
}

// Halt resets the terminal colors.
func (d *Dev) Halt() error {
	if d.opts.Plain {
		return nil
	}
	_, err := d.w.Write([]byte("\033[0m"))
	return err
}
