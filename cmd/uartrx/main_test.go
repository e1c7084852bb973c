// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/softserial/bitview"
	"periph.io/x/softserial/uartrx"
)

func TestParsePull(t *testing.T) {
	for in, want := range map[string]gpio.Pull{
		"up":    gpio.PullUp,
		"Down":  gpio.PullDown,
		"FLOAT": gpio.Float,
	} {
		got, err := parsePull(in)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("parsePull(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := parsePull("sideways"); err == nil {
		t.Error("parsePull(sideways) succeeded")
	}
}

func TestBaudFlag(t *testing.T) {
	defer func() { baud = uartrx.DefaultOpts.BaudRate }()
	if baud != 9600*physic.Hertz {
		t.Fatalf("default baud = %s", baud)
	}
	f := flag.CommandLine.Lookup("baud")
	if f == nil {
		t.Fatal("-baud is not registered")
	}
	if err := f.Value.Set("115.2kHz"); err != nil {
		t.Fatal(err)
	}
	if baud != 115200*physic.Hertz {
		t.Fatalf("baud = %s, want 115.2kHz", baud)
	}
}

// line drives a receiver on a fake pin, one sampler tick at a time.
type line struct {
	t     *testing.T
	pin   *gpiotest.Pin
	clock *clockwork.FakeClock
	dev   *uartrx.Dev
}

func newLine(t *testing.T, trace func(uartrx.Sample)) *line {
	l := &line{
		t: t,
		pin: &gpiotest.Pin{
			N:         "GPIO15",
			Num:       15,
			Clock:     clockwork.NewRealClock(),
			EdgesChan: make(chan gpio.Level),
		},
		clock: clockwork.NewFakeClock(),
	}
	opts := uartrx.DefaultOpts
	opts.Clock = l.clock
	opts.Trace = trace
	dev, err := uartrx.New(l.pin, &opts)
	if err != nil {
		t.Fatal(err)
	}
	l.dev = dev
	t.Cleanup(func() { _ = dev.Halt() })
	return l
}

func (l *line) waitTimer() {
	l.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.clock.BlockUntilContext(ctx, 1); err != nil {
		l.t.Fatal("sampler did not schedule a tick")
	}
}

func (l *line) waitStats(done func(uartrx.Stats) bool) {
	l.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done(l.dev.Stats()) {
		if time.Now().After(deadline) {
			l.t.Fatalf("stats stuck at %s", l.dev.Stats())
		}
		time.Sleep(time.Millisecond)
	}
}

// start sends the start edge. The receiver must be armed.
func (l *line) start() {
	l.t.Helper()
	select {
	case l.pin.EdgesChan <- gpio.Low:
	case <-time.After(5 * time.Second):
		l.t.Fatal("edge watcher is not waiting")
	}
	l.waitTimer()
}

// send clocks out b; it returns once the last tick elapsed.
func (l *line) send(b byte) {
	l.t.Helper()
	l.start()
	for tick := 1; tick <= uartrx.LastDataTick; tick++ {
		v := gpio.Low
		if tick >= uartrx.FirstDataTick {
			v = gpio.Level(b&(1<<uint((tick-uartrx.FirstDataTick)/uartrx.Oversampling)) != 0)
		}
		_ = l.pin.Out(v)
		l.clock.Advance(l.dev.TickPeriod())
		if tick < uartrx.LastDataTick {
			l.waitTimer()
		}
	}
}

func runReceive(dev *uartrx.Dev, view *bitview.Dev, stats <-chan time.Time) <-chan error {
	done := make(chan error, 1)
	go func() { done <- receive(dev, view, stats) }()
	return done
}

func waitReceive(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not return after Halt")
	}
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestReceive_Byte(t *testing.T) {
	dir := t.TempDir()
	pl := newPlotter(dir)
	l := newLine(t, pl.trace)
	var buf bytes.Buffer
	done := runReceive(l.dev, bitview.New(&bitview.Opts{W: &buf}), nil)

	l.send('A')
	l.waitStats(func(s uartrx.Stats) bool { return s.Frames == 1 })
	if err := l.dev.Halt(); err != nil {
		t.Fatal(err)
	}
	waitReceive(t, done)
	pl.close()

	if !strings.HasPrefix(buf.String(), "0x41 'A' ·■·····■ ") || strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("view got %q, want one line for 'A'", buf.String())
	}
	if diff := cmp.Diff(listDir(t, dir), []string{"frame-000001.png"}); diff != "" {
		t.Fatalf("plots difference (-got +want):\n%s", diff)
	}
	png, err := os.ReadFile(filepath.Join(dir, "frame-000001.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("frame-000001.png is not a PNG")
	}
}

func TestReceive_Glitch(t *testing.T) {
	dir := t.TempDir()
	pl := newPlotter(dir)
	l := newLine(t, pl.trace)
	var buf bytes.Buffer
	stats := make(chan time.Time)
	done := runReceive(l.dev, bitview.New(&bitview.Opts{W: &buf, MaxGlitchMarks: 4}), stats)

	l.start()
	_ = l.pin.Out(gpio.High)
	l.clock.Advance(l.dev.TickPeriod())
	l.waitStats(func(s uartrx.Stats) bool { return s.Glitches == 1 })
	stats <- time.Now()
	// Nothing new: no line is printed.
	stats <- time.Now()
	if err := l.dev.Halt(); err != nil {
		t.Fatal(err)
	}
	waitReceive(t, done)
	pl.close()

	if diff := cmp.Diff(buf.String(), "glitch ! 1\n"); diff != "" {
		t.Fatalf("view difference (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(listDir(t, dir), []string{"frame-000001.png"}); diff != "" {
		t.Fatalf("plots difference (-got +want):\n%s", diff)
	}
}

func TestPlotter_TraceDoesNotBlock(t *testing.T) {
	// The writer goroutine is never started, so the queue fills up.
	p := &plotter{frames: make(chan []uartrx.Sample, 1)}
	glitch := uartrx.Sample{Tick: uartrx.StartTick, Level: gpio.High, Action: uartrx.Glitch}
	for i := 0; i < 3; i++ {
		p.trace(glitch)
	}
	if len(p.frames) != 1 {
		t.Fatalf("queued %d frames, want 1", len(p.frames))
	}
	p.trace(uartrx.Sample{Tick: uartrx.StartTick, Action: uartrx.StartBit})
	if len(p.frames) != 1 {
		t.Fatal("an unfinished frame was queued")
	}
}
