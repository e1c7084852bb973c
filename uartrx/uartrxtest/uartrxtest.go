// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uartrxtest is meant to be used to test code using uartrx without
// hardware.
//
// Edge and Sampler record how the decoder drives them. Frame and Glitch
// return the line level at each sampler tick, and Feed plays them into a
// decoder through a gpiotest.Pin.
package uartrxtest

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/softserial/uartrx"
)

// Edge implements uartrx.EdgeDetector and records calls.
type Edge struct {
	sync.Mutex
	Arms    int
	Disarms int
	Armed   bool
}

// Arm implements uartrx.EdgeDetector.
func (e *Edge) Arm() {
	e.Lock()
	defer e.Unlock()
	e.Arms++
	e.Armed = true
}

// Disarm implements uartrx.EdgeDetector.
func (e *Edge) Disarm() {
	e.Lock()
	defer e.Unlock()
	e.Disarms++
	e.Armed = false
}

// Sampler implements uartrx.Sampler and records calls. It does not tick;
// the test calls Step(uartrx.Tick) itself.
type Sampler struct {
	sync.Mutex
	Starts  int
	Stops   int
	Running bool
}

// Start implements uartrx.Sampler.
func (s *Sampler) Start() {
	s.Lock()
	defer s.Unlock()
	s.Starts++
	s.Running = true
}

// Stop implements uartrx.Sampler.
func (s *Sampler) Stop() {
	s.Lock()
	defer s.Unlock()
	s.Stops++
	s.Running = false
}

// Sink collects emitted bytes.
type Sink struct {
	sync.Mutex
	Bytes []byte
}

// Put is a uartrx sink.
func (s *Sink) Put(b byte) {
	s.Lock()
	defer s.Unlock()
	s.Bytes = append(s.Bytes, b)
}

// Frame returns the line level at ticks 1 to uartrx.LastDataTick for b.
//
// Index i is tick i+1. Each bit cell spans two ticks, data bits are least
// significant first.
func Frame(b byte) []gpio.Level {
	out := make([]gpio.Level, uartrx.LastDataTick)
	for i := range out {
		tick := i + 1
		if tick < uartrx.FirstDataTick {
			out[i] = gpio.Low
			continue
		}
		bit := (tick - uartrx.FirstDataTick) / uartrx.Oversampling
		out[i] = gpio.Level(b&(1<<uint(bit)) != 0)
	}
	return out
}

// Glitch returns a falling edge that is already high again at tick 1.
func Glitch() []gpio.Level {
	return []gpio.Level{gpio.High}
}

// Feed pulls the line low, raises a falling edge then plays levels, one per
// tick.
//
// The decoder must be built on p.
func Feed(d *uartrx.Decoder, p *gpiotest.Pin, levels []gpio.Level) {
	_ = p.Out(gpio.Low)
	d.Step(uartrx.FallingEdge)
	for _, l := range levels {
		_ = p.Out(l)
		d.Step(uartrx.Tick)
	}
	_ = p.Out(gpio.High)
}

var _ uartrx.EdgeDetector = &Edge{}
var _ uartrx.Sampler = &Sampler{}
