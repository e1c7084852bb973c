// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uartrx

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

const (
	// Oversampling is the number of sampler ticks per bit period.
	Oversampling = 2
	// DataBits is the number of data bits in a frame.
	DataBits = 8

	// StartTick is the tick at which the start bit is confirmed.
	StartTick = 1
	// FirstDataTick is the tick at which data bit 0 is sampled.
	FirstDataTick = StartTick + Oversampling
	// LastDataTick is the tick at which data bit 7 is sampled and the byte is
	// emitted.
	LastDataTick = FirstDataTick + (DataBits-1)*Oversampling
)

// TickPeriod returns the sampler period for the baud rate, half a bit
// period. It returns 0 if baud is not positive.
func TickPeriod(baud physic.Frequency) time.Duration {
	if baud <= 0 {
		return 0
	}
	return (baud * Oversampling).Period()
}

// dataBit returns the index of the data bit sampled at tick, if any.
func dataBit(tick uint8) (int, bool) {
	if tick < FirstDataTick || tick > LastDataTick || (tick-FirstDataTick)%Oversampling != 0 {
		return 0, false
	}
	return int(tick-FirstDataTick) / Oversampling, true
}

// State is the decoder state.
type State uint8

const (
	// Idle means the edge detector is armed and the sampler is stopped.
	Idle State = iota
	// Framing means the sampler is running and bits are being collected.
	Framing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Framing:
		return "Framing"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Event is an input to the decoder.
type Event uint8

const (
	// FallingEdge is raised by the edge detector on a high to low transition.
	FallingEdge Event = iota + 1
	// Tick is raised by the sampler once per tick period.
	Tick
	// Overrun is raised by a sampler that detected lost ticks. The current
	// frame, if any, is discarded.
	Overrun
)

func (e Event) String() string {
	switch e {
	case FallingEdge:
		return "FallingEdge"
	case Tick:
		return "Tick"
	case Overrun:
		return "Overrun"
	default:
		return fmt.Sprintf("Event(%d)", uint8(e))
	}
}

// Line reads the current level of the receive line.
//
// gpio.PinIn implements it.
type Line interface {
	Read() gpio.Level
}

// EdgeDetector notifies FallingEdge while armed.
type EdgeDetector interface {
	Arm()
	Disarm()
}

// Sampler generates Tick every half bit period while started. Start always
// begins at tick 1.
type Sampler interface {
	Start()
	Stop()
}

// DecoderOpts holds optional hooks for a Decoder.
type DecoderOpts struct {
	// Trace, if set, is called from Step for every line sample and abort. It
	// runs in the same context as Step and must not block.
	Trace func(Sample)
}

// Decoder is the receive state machine for one line.
//
// Step must not be called concurrently. Stats is safe for concurrent use.
type Decoder struct {
	line    Line
	edge    EdgeDetector
	sampler Sampler
	sink    func(byte)
	trace   func(Sample)

	state        State
	tickCount    uint8
	assembled    byte
	bitsReceived uint8

	counters counters
}

// NewDecoder returns a Decoder reporting each decoded byte to sink.
//
// The decoder does not touch edge or sampler until Reset is called.
func NewDecoder(line Line, edge EdgeDetector, sampler Sampler, sink func(byte), opts *DecoderOpts) *Decoder {
	d := &Decoder{line: line, edge: edge, sampler: sampler, sink: sink}
	if opts != nil {
		d.trace = opts.Trace
	}
	return d
}

// Reset stops the sampler, arms the edge detector and returns to Idle.
func (d *Decoder) Reset() {
	d.sampler.Stop()
	d.clear()
	d.state = Idle
	d.edge.Arm()
}

// State returns the current state.
func (d *Decoder) State() State {
	return d.state
}

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.counters.snapshot()
}

// OnFallingEdge is Step(FallingEdge).
func (d *Decoder) OnFallingEdge() {
	d.Step(FallingEdge)
}

// OnTick is Step(Tick).
func (d *Decoder) OnTick() {
	d.Step(Tick)
}

// Step advances the state machine by one event. It never blocks.
func (d *Decoder) Step(e Event) {
	switch e {
	case FallingEdge:
		if d.state != Idle {
			d.counters.ignoredEdges.Add(1)
			return
		}
		d.clear()
		d.edge.Disarm()
		d.state = Framing
		d.sampler.Start()
	case Tick:
		if d.state != Framing {
			d.counters.strayTicks.Add(1)
			return
		}
		d.tick()
	case Overrun:
		if d.state != Framing {
			return
		}
		d.counters.overruns.Add(1)
		d.emitTrace(Sample{Tick: d.tickCount, Action: Abort})
		d.rearm()
	}
}

func (d *Decoder) tick() {
	d.tickCount++
	if d.tickCount == StartTick {
		l := d.line.Read()
		if l == gpio.High {
			d.counters.glitches.Add(1)
			d.emitTrace(Sample{Tick: d.tickCount, Level: l, Action: Glitch})
			d.rearm()
			return
		}
		d.emitTrace(Sample{Tick: d.tickCount, Level: l, Action: StartBit})
		return
	}
	bit, ok := dataBit(d.tickCount)
	if !ok {
		return
	}
	l := d.line.Read()
	if l == gpio.High {
		d.assembled |= 1 << uint(bit)
	}
	d.bitsReceived++
	if d.bitsReceived < DataBits {
		d.emitTrace(Sample{Tick: d.tickCount, Level: l, Action: DataBit})
		return
	}
	b := d.assembled
	d.counters.frames.Add(1)
	d.emitTrace(Sample{Tick: d.tickCount, Level: l, Action: Complete, Byte: b})
	if d.sink != nil {
		d.sink(b)
	}
	d.rearm()
}

// rearm ends the current frame.
func (d *Decoder) rearm() {
	d.sampler.Stop()
	d.state = Idle
	d.edge.Arm()
}

func (d *Decoder) clear() {
	d.tickCount = 0
	d.assembled = 0
	d.bitsReceived = 0
}

func (d *Decoder) emitTrace(s Sample) {
	if d.trace != nil {
		d.trace(s)
	}
}
