// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// uartrx receives bytes from a software UART on a GPIO pin and prints them.
//
//	uartrx -pin GPIO15 -baud 2400 -plot /tmp/frames
//
// With -plot, a timing diagram of every frame, glitch and overrun is written
// as a PNG into the directory.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"periph.io/x/softserial/bitview"
	"periph.io/x/softserial/traceplot"
	"periph.io/x/softserial/uartrx"
)

var (
	pinName = flag.String("pin", "GPIO15", "receive pin name")
	pull    = flag.String("pull", "up", "receive pin bias: up, down, float")
	buffer  = flag.Int("buf", uartrx.DefaultOpts.Buffer, "received bytes buffered before dropping")
	plotDir = flag.String("plot", "", "directory to write frame timing diagrams to")
)

// baud is set with -baud; physic.Frequency parses values like "115.2kHz".
var baud physic.Frequency

func init() {
	baud = uartrx.DefaultOpts.BaudRate
	flag.Var(&baud, "baud", "baud rate")
}

func parsePull(s string) (gpio.Pull, error) {
	switch strings.ToLower(s) {
	case "up":
		return gpio.PullUp, nil
	case "down":
		return gpio.PullDown, nil
	case "float":
		return gpio.Float, nil
	default:
		return gpio.PullNoChange, fmt.Errorf("unknown pull %q", s)
	}
}

// plotter writes the frames traced by the receive goroutine.
type plotter struct {
	dir    string
	frames chan []uartrx.Sample
	done   chan struct{}
	seq    int
	c      traceplot.Capture
}

func newPlotter(dir string) *plotter {
	p := &plotter{
		dir:    dir,
		frames: make(chan []uartrx.Sample, 16),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// trace is the uartrx.Opts.Trace hook. It runs on the receive goroutine and
// must not block; frames are dropped while the writer is behind.
func (p *plotter) trace(s uartrx.Sample) {
	p.c.Add(s)
	if !p.c.Done() {
		return
	}
	select {
	case p.frames <- p.c.Samples():
	default:
	}
}

// close waits for queued frames to be written. The device must be halted
// first.
func (p *plotter) close() {
	close(p.frames)
	<-p.done
}

func (p *plotter) run() {
	defer close(p.done)
	for samples := range p.frames {
		p.seq++
		name := filepath.Join(p.dir, fmt.Sprintf("frame-%06d.png", p.seq))
		f, err := os.Create(name)
		if err != nil {
			glog.Warningf("plot: %v", err)
			continue
		}
		err = traceplot.WritePNG(f, samples, nil)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			glog.Warningf("plot %s: %v", name, err)
			continue
		}
		glog.V(2).Infof("wrote %s", name)
	}
}

// receive prints bytes from dev until it is halted. On every stats tick, new
// glitches are printed and lost frames are logged.
func receive(dev *uartrx.Dev, view *bitview.Dev, stats <-chan time.Time) error {
	var last uartrx.Stats
	for {
		select {
		case b, ok := <-dev.Bytes():
			if !ok {
				glog.Infof("%s", dev.Stats())
				return nil
			}
			if err := view.Byte(b); err != nil {
				return err
			}
		case <-stats:
			s := dev.Stats()
			if err := view.Glitch(int(s.Glitches - last.Glitches)); err != nil {
				return err
			}
			if s.Dropped != last.Dropped {
				glog.Warningf("dropped %d bytes", s.Dropped-last.Dropped)
			}
			if s.Overruns != last.Overruns {
				glog.Warningf("%d frames lost to sampler overruns", s.Overruns-last.Overruns)
			}
			last = s
		}
	}
}

func mainImpl() error {
	if _, err := host.Init(); err != nil {
		return err
	}
	p, err := parsePull(*pull)
	if err != nil {
		return err
	}
	opts := uartrx.DefaultOpts
	opts.BaudRate = baud
	opts.Pull = p
	opts.Buffer = *buffer

	if *plotDir != "" {
		if err := os.MkdirAll(*plotDir, 0o755); err != nil {
			return err
		}
		pl := newPlotter(*plotDir)
		defer pl.close()
		opts.Trace = pl.trace
	}

	dev, err := uartrx.Open(*pinName, &opts)
	if err != nil {
		return err
	}
	defer dev.Halt()
	glog.Infof("%s: tick %s", dev, dev.TickPeriod())

	view := bitview.New(nil)
	defer view.Halt()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		glog.Info("stop requested")
		_ = dev.Halt()
	}()

	t := time.NewTicker(time.Second)
	defer t.Stop()
	return receive(dev, view, t.C)
}

func main() {
	flag.Parse()
	defer glog.Flush()
	if err := mainImpl(); err != nil {
		glog.Exitf("uartrx: %v", err)
	}
}
