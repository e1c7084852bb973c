// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package traceplot draws the samples of one received frame as a timing
// diagram.
//
// The line is redrawn from the samples: each sample at an odd tick gives the
// level of the bit cell spanning the tick before and the tick after it. Idle
// high is drawn before the start edge. Sample points are marked with dots and
// each cell is labeled with the bit it carries.
package traceplot

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/softserial/uartrx"
)

var errNoSamples = errors.New("traceplot: no samples")

// Opts is the plot geometry.
type Opts struct {
	Width  int
	Height int
	// Face is used for labels. It defaults to Go Regular at FontSize.
	Face     font.Face
	FontSize float64
}

// DefaultOpts is a 640x160 plot.
var DefaultOpts = Opts{Width: 640, Height: 160, FontSize: 12}

// Capture accumulates the samples of the current frame. Add is suitable as
// uartrx.Opts.Trace.
//
// It is not safe for concurrent use.
type Capture struct {
	samples []uartrx.Sample
	done    bool
}

// Add appends s. A sample following a finished frame starts a new one.
func (c *Capture) Add(s uartrx.Sample) {
	if c.done {
		c.samples = c.samples[:0]
		c.done = false
	}
	c.samples = append(c.samples, s)
	switch s.Action {
	case uartrx.Complete, uartrx.Glitch, uartrx.Abort:
		c.done = true
	}
}

// Done reports whether the last frame ended.
func (c *Capture) Done() bool {
	return c.done
}

// Samples returns a copy of the samples of the current or last frame.
func (c *Capture) Samples() []uartrx.Sample {
	return append([]uartrx.Sample(nil), c.samples...)
}

// Draw renders samples. If opts is nil, DefaultOpts is used.
func Draw(samples []uartrx.Sample, opts *Opts) (image.Image, error) {
	dc, err := draw(samples, opts)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// WritePNG renders samples as a PNG to w.
func WritePNG(w io.Writer, samples []uartrx.Sample, opts *Opts) error {
	dc, err := draw(samples, opts)
	if err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

// cells is the number of tick slots drawn: one idle slot before the edge,
// then ticks 0 to LastDataTick+1.
const cells = uartrx.LastDataTick + 3

func draw(samples []uartrx.Sample, opts *Opts) (*gg.Context, error) {
	if len(samples) == 0 {
		return nil, errNoSamples
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Width <= 0 || o.Height <= 0 {
		return nil, fmt.Errorf("traceplot: invalid size %dx%d", o.Width, o.Height)
	}
	face := o.Face
	if face == nil {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			return nil, err
		}
		size := o.FontSize
		if size <= 0 {
			size = DefaultOpts.FontSize
		}
		face = truetype.NewFace(f, &truetype.Options{Size: size})
	}

	dc := gg.NewContext(o.Width, o.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(face)

	w := float64(o.Width)
	h := float64(o.Height)
	step := w / cells
	// x returns the position of a tick; the idle slot is tick -1.
	x := func(tick int) float64 { return float64(tick+1) * step }
	yHigh := h * 0.35
	yLow := h * 0.7
	y := func(l bool) float64 {
		if l {
			return yHigh
		}
		return yLow
	}

	// Tick grid.
	dc.SetRGB(0.85, 0.85, 0.85)
	dc.SetLineWidth(1)
	dc.SetDash(2, 3)
	for t := 0; t <= uartrx.LastDataTick+1; t++ {
		dc.DrawLine(x(t), yHigh-10, x(t), yLow+10)
		dc.Stroke()
	}
	dc.SetDash()

	// Waveform: idle high, falling edge at tick 0, then one cell per sample.
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(2)
	dc.MoveTo(x(-1), yHigh)
	dc.LineTo(x(0), yHigh)
	dc.LineTo(x(0), yLow)
	prev := false
	last := samples[len(samples)-1]
	for _, s := range samples {
		if s.Action == uartrx.Abort {
			continue
		}
		l := bool(s.Level)
		from := int(s.Tick) - 1
		if from < 0 {
			from = 0
		}
		if l != prev {
			dc.LineTo(x(from), y(l))
		}
		dc.LineTo(x(int(s.Tick)+1), y(l))
		prev = l
	}
	dc.Stroke()

	// Sample points and labels.
	for _, s := range samples {
		if s.Action == uartrx.Abort {
			continue
		}
		t := int(s.Tick)
		dc.SetRGB(0.8, 0, 0)
		dc.DrawCircle(x(t), y(bool(s.Level)), 3)
		dc.Fill()
		dc.SetRGB(0.2, 0.2, 0.2)
		dc.DrawStringAnchored(cellLabel(s), x(t), yHigh-20, 0.5, 0.5)
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(summary(last), w/2, h-12, 0.5, 0.5)
	return dc, nil
}

// cellLabel names the bit sampled by s.
func cellLabel(s uartrx.Sample) string {
	if s.Tick == uartrx.StartTick {
		return "S"
	}
	return fmt.Sprintf("%d", (int(s.Tick)-uartrx.FirstDataTick)/uartrx.Oversampling)
}

func summary(last uartrx.Sample) string {
	switch last.Action {
	case uartrx.Complete:
		return fmt.Sprintf("0x%02X", last.Byte)
	case uartrx.Glitch:
		return "glitch"
	case uartrx.Abort:
		return fmt.Sprintf("overrun at tick %d", last.Tick)
	default:
		return fmt.Sprintf("incomplete at tick %d", last.Tick)
	}
}
