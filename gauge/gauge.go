// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gauge draws thermal zone readings as horizontal bar gauges.
//
// The image can be saved as a PNG snapshot or sent as is to any
// display.Drawer.
package gauge

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/GermanBionicSystems/fitpc2tz/thermal"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/physic"
)

// Opts controls the rendering.
type Opts struct {
	Width  int
	Height int
	// Min and Max bound the scale; they default to 20°C and 130°C.
	Min physic.Temperature
	Max physic.Temperature
	// FontSize in points, defaults to 12.
	FontSize float64
}

// DefaultOpts renders on a 256x64 canvas.
var DefaultOpts = Opts{Width: 256, Height: 64}

const (
	defaultMin = physic.ZeroCelsius + 20*physic.Kelvin
	defaultMax = physic.ZeroCelsius + 130*physic.Kelvin
	padding    = 4
)

// Heat maps t onto a blue to red scale between lo and hi.
func Heat(t, lo, hi physic.Temperature) color.NRGBA {
	f := fraction(t, lo, hi)
	return color.NRGBA{R: uint8(255 * f), G: uint8(64 * (1 - math.Abs(2*f-1))), B: uint8(255 * (1 - f)), A: 255}
}

func fraction(t, lo, hi physic.Temperature) float64 {
	if hi <= lo {
		return 0
	}
	f := float64(t-lo) / float64(hi-lo)
	return math.Max(0, math.Min(1, f))
}

// Render draws one row per reading.
//
// Unavailable readings are drawn as an empty bar labeled "n/a". A red mark
// shows the trip point when the zone has one.
func Render(readings []thermal.Reading, opts *Opts) (image.Image, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Width <= 0 || o.Height <= 0 {
		return nil, fmt.Errorf("gauge: invalid size %dx%d", o.Width, o.Height)
	}
	if o.Min == 0 {
		o.Min = defaultMin
	}
	if o.Max == 0 {
		o.Max = defaultMax
	}
	if o.FontSize == 0 {
		o.FontSize = 12
	}
	face, err := loadFace(o.FontSize)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(o.Width, o.Height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetFontFace(face)
	if len(readings) == 0 {
		return dc.Image(), nil
	}

	w := float64(o.Width)
	rowH := float64(o.Height) / float64(len(readings))
	labelW := w * 0.45
	barX := labelW
	barW := w - labelW - padding
	for i, r := range readings {
		y := rowH * float64(i)
		barY := y + padding
		barH := rowH - 2*padding
		name := "?"
		if r.Zone != nil {
			name = r.Zone.Type
		}
		label := name + " n/a"
		if r.Err == nil {
			label = fmt.Sprintf("%s %d°C", name, int(math.Round(r.Temperature.Celsius())))
		}
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(label, padding, y+rowH/2, 0, 0.35)

		dc.SetRGB(0.3, 0.3, 0.3)
		dc.DrawRectangle(barX, barY, barW, barH)
		dc.Stroke()
		if r.Err == nil {
			dc.SetColor(Heat(r.Temperature, o.Min, o.Max))
			dc.DrawRectangle(barX, barY, barW*fraction(r.Temperature, o.Min, o.Max), barH)
			dc.Fill()
		}
		if r.Trip != 0 {
			x := barX + barW*fraction(r.Trip, o.Min, o.Max)
			dc.SetRGB(1, 0, 0)
			dc.DrawLine(x, y+1, x, y+rowH-1)
			dc.Stroke()
		}
	}
	return dc.Image(), nil
}

// SavePNG renders readings and writes them to path.
func SavePNG(path string, readings []thermal.Reading, opts *Opts) error {
	img, err := Render(readings, opts)
	if err != nil {
		return err
	}
	return gg.SavePNG(path, img)
}

func loadFace(size float64) (font.Face, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("gauge: %w", err)
	}
	return truetype.NewFace(f, &truetype.Options{Size: size}), nil
}
