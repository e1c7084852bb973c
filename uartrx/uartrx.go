// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uartrx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// pollTimeout bounds how long Halt waits for the edge watcher on drivers
// that do not abort WaitForEdge when In is called.
const pollTimeout = 100 * time.Millisecond

// Opts holds the configuration of a Dev.
type Opts struct {
	// BaudRate is the nominal bit rate of the line.
	BaudRate physic.Frequency
	// Pull is the bias applied to the receive pin. A UART line idles high.
	Pull gpio.Pull
	// Buffer is the depth of the channel returned by Bytes. Bytes decoded
	// while it is full are dropped and counted in Stats.Dropped.
	Buffer int
	// Clock drives the sampler. It defaults to the real clock.
	Clock clockwork.Clock
	// Trace is passed to the decoder. It runs on the receive goroutine.
	Trace func(Sample)
}

// DefaultOpts is 9600 baud with the internal pull up.
var DefaultOpts = Opts{
	BaudRate: 9600 * physic.Hertz,
	Pull:     gpio.PullUp,
	Buffer:   64,
}

// Dev is a software UART receiver on a host GPIO pin.
//
// It runs two goroutines. One waits for falling edges on the pin; the other
// owns the Decoder and the sampler timer and is the only caller of Step.
type Dev struct {
	pin     gpio.PinIn
	opts    Opts
	dec     *Decoder
	edge    hostEdge
	sampler hostSampler

	edges   chan struct{}
	bytes   chan byte
	dropped atomic.Uint32

	stop     chan struct{}
	wg       sync.WaitGroup
	haltOnce sync.Once
	haltErr  error
}

// Open looks up the pin by name in gpioreg and returns a receiver on it.
//
// host.Init must have been called.
func Open(name string, opts *Opts) (*Dev, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: no pin %q", ErrLineNotReady, name)
	}
	return New(p, opts)
}

// New configures p for falling edge detection and starts receiving.
//
// If opts is nil, DefaultOpts is used.
func New(p gpio.PinIn, opts *Opts) (*Dev, error) {
	if p == nil || p == gpio.INVALID {
		return nil, ErrLineNotReady
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	period := TickPeriod(o.BaudRate)
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBaudRate, o.BaudRate)
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultOpts.Buffer
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if err := p.In(o.Pull, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPeripheralInit, p, err)
	}
	d := &Dev{
		pin:     p,
		opts:    o,
		sampler: hostSampler{clock: o.Clock, period: period},
		edges:   make(chan struct{}, 1),
		bytes:   make(chan byte, o.Buffer),
		stop:    make(chan struct{}),
	}
	d.dec = NewDecoder(p, &d.edge, &d.sampler, d.deliver, &DecoderOpts{Trace: o.Trace})
	// Armed before the watcher starts so the first edge is not lost.
	d.dec.Reset()
	d.wg.Add(2)
	go d.watch()
	go d.run()
	return d, nil
}

// Bytes returns the channel of decoded bytes. It is closed by Halt.
func (d *Dev) Bytes() <-chan byte {
	return d.bytes
}

// Stats returns the receive counters.
func (d *Dev) Stats() Stats {
	s := d.dec.Stats()
	s.Dropped = d.dropped.Load()
	return s
}

// TickPeriod returns the sampler period in use.
func (d *Dev) TickPeriod() time.Duration {
	return d.sampler.period
}

// Halt implements conn.Resource.
//
// It stops receiving, disables edge detection on the pin and closes the
// channel returned by Bytes. It is safe to call more than once.
func (d *Dev) Halt() error {
	d.haltOnce.Do(func() {
		close(d.stop)
		// Calling In aborts a pending WaitForEdge.
		d.haltErr = d.pin.In(gpio.PullNoChange, gpio.NoEdge)
		d.wg.Wait()
	})
	return d.haltErr
}

func (d *Dev) String() string {
	return fmt.Sprintf("uartrx{%s, %s}", d.pin, d.opts.BaudRate)
}

// deliver is the decoder sink. It must not block.
func (d *Dev) deliver(b byte) {
	select {
	case d.bytes <- b:
	default:
		d.dropped.Add(1)
	}
}

// watch forwards falling edges while the edge detector is armed.
func (d *Dev) watch() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		if !d.pin.WaitForEdge(pollTimeout) || !d.edge.armed.Load() {
			continue
		}
		select {
		case d.edges <- struct{}{}:
		default:
		}
	}
}

// run owns the decoder.
func (d *Dev) run() {
	defer d.wg.Done()
	defer close(d.bytes)
	for {
		select {
		case <-d.stop:
			d.sampler.Stop()
			return
		case <-d.edges:
			d.dec.Step(FallingEdge)
		case <-d.sampler.c:
			d.dec.Step(d.sampler.next())
			d.sampler.resume()
		}
	}
}

// hostEdge gates the watcher goroutine.
type hostEdge struct {
	armed atomic.Bool
}

func (e *hostEdge) Arm() {
	e.armed.Store(true)
}

func (e *hostEdge) Disarm() {
	e.armed.Store(false)
}

// hostSampler is a one-shot timer read by Dev.run, re-armed after each tick
// is handled. Ticks are due at fixed offsets from Start, so handling time
// does not accumulate. It is only touched from run.
type hostSampler struct {
	clock  clockwork.Clock
	period time.Duration

	timer     clockwork.Timer
	c         <-chan time.Time
	started   time.Time
	delivered int64
}

func (s *hostSampler) Start() {
	s.Stop()
	s.started = s.clock.Now()
	s.delivered = 0
	s.timer = s.clock.NewTimer(s.period)
	s.c = s.timer.Chan()
}

func (s *hostSampler) Stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.c = nil
}

// next accounts for one received tick. A tick handled a full period or more
// after its due time means the line is no longer sampled at bit centers.
func (s *hostSampler) next() Event {
	s.delivered++
	if s.clock.Since(s.started) >= time.Duration(s.delivered+1)*s.period {
		return Overrun
	}
	return Tick
}

// resume arms the timer for the tick after the last one delivered, unless
// the sampler was stopped in the meantime. A late tick fires immediately.
func (s *hostSampler) resume() {
	if s.timer == nil {
		return
	}
	due := time.Duration(s.delivered+1)*s.period - s.clock.Since(s.started)
	s.timer.Reset(due)
}

var _ conn.Resource = &Dev{}
var _ EdgeDetector = &hostEdge{}
var _ Sampler = &hostSampler{}
