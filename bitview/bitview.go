// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitview prints received bytes to a terminal, one line per byte,
// with each bit shown as a glyph and as an ANSI colored block.
//
//	0x41 'A' ·■·····■ <blocks>
//
// Bits are printed most significant first, as they are usually read, even
// though the line carries them least significant first.
package bitview

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"strings"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3"
)

// Opts represents the options available for this view.
type Opts struct {
	// W defaults to the colorable stdout.
	W       io.Writer
	Palette *ansi256.Palette
	// One and Zero are the block colors for set and cleared bits.
	One  color.NRGBA
	Zero color.NRGBA
	// MaxGlitchMarks caps the marks printed by Glitch.
	MaxGlitchMarks int

	_ struct{}
}

// DefaultOpts draws set bits green and cleared bits dark grey.
var DefaultOpts = Opts{
	One:            color.NRGBA{0x00, 0xC0, 0x00, 0xFF},
	Zero:           color.NRGBA{0x30, 0x30, 0x30, 0xFF},
	MaxGlitchMarks: 16,
}

const (
	glyphOne   = "■"
	glyphZero  = "·"
	glitchMark = "!"
)

// Dev renders bytes to a console.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette
	one     color.NRGBA
	zero    color.NRGBA
	maxMark int

	buf bytes.Buffer
}

// New returns a Dev. If opts is nil, DefaultOpts is used.
func New(opts *Opts) *Dev {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	p := o.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := o.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	if o.MaxGlitchMarks <= 0 {
		o.MaxGlitchMarks = DefaultOpts.MaxGlitchMarks
	}
	return &Dev{
		w:       w,
		palette: *p,
		one:     o.One,
		zero:    o.Zero,
		maxMark: o.MaxGlitchMarks,
	}
}

func (d *Dev) String() string {
	return "BitView"
}

// Halt implements conn.Resource.
//
// It resets the terminal colors.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\033[0m\n"))
	return err
}

// Write prints one line per byte of p.
func (d *Dev) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := d.Byte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Byte prints one byte.
func (d *Dev) Byte(b byte) error {
	// This code is designed to minimize the amount of memory allocated per call.
	d.buf.Reset()
	_, _ = fmt.Fprintf(&d.buf, "0x%02X %s ", b, printable(b))
	_, _ = d.buf.WriteString(Glyphs(b))
	_, _ = d.buf.WriteString(" ")
	for i := 7; i >= 0; i-- {
		c := d.zero
		if b&(1<<uint(i)) != 0 {
			c = d.one
		}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m\n")
	_, err := d.buf.WriteTo(d.w)
	return err
}

// Glitch prints a line for n rejected start bits. At most MaxGlitchMarks
// marks are printed; the count is always printed in full.
func (d *Dev) Glitch(n int) error {
	if n <= 0 {
		return nil
	}
	m := n
	if m > d.maxMark {
		m = d.maxMark
	}
	_, err := fmt.Fprintf(d.w, "glitch %s %d\n", strings.Repeat(glitchMark, m), n)
	return err
}

// Glyphs returns the bits of b, most significant first, as "·" and "■".
func Glyphs(b byte) string {
	var s strings.Builder
	for i := 7; i >= 0; i-- {
		if b&(1<<uint(i)) != 0 {
			s.WriteString(glyphOne)
		} else {
			s.WriteString(glyphZero)
		}
	}
	return s.String()
}

func printable(b byte) string {
	if b < 0x20 || b > 0x7E {
		return "   "
	}
	return fmt.Sprintf("'%c'", b)
}

var _ conn.Resource = &Dev{}
var _ io.Writer = &Dev{}
var _ fmt.Stringer = &Dev{}
