// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uartrxtest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
)

func TestFrame(t *testing.T) {
	const L, H = gpio.Low, gpio.High
	got := Frame(0x41)
	// start, d0=1, d1..d5=0, d6=1, d7=0; two ticks per cell, tick 1 first.
	want := []gpio.Level{L, L, H, H, L, L, L, L, L, L, L, L, L, L, H, H, L}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("Frame(0x41) difference (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(Glitch(), []gpio.Level{H}); diff != "" {
		t.Fatalf("Glitch() difference (-got +want):\n%s", diff)
	}
}

func TestRecorders(t *testing.T) {
	e := &Edge{}
	e.Arm()
	e.Disarm()
	e.Arm()
	if e.Arms != 2 || e.Disarms != 1 || !e.Armed {
		t.Fatalf("edge = %d/%d/%t", e.Arms, e.Disarms, e.Armed)
	}
	s := &Sampler{}
	s.Start()
	s.Stop()
	if s.Starts != 1 || s.Stops != 1 || s.Running {
		t.Fatalf("sampler = %d/%d/%t", s.Starts, s.Stops, s.Running)
	}
	k := &Sink{}
	k.Put(1)
	k.Put(2)
	if diff := cmp.Diff(k.Bytes, []byte{1, 2}); diff != "" {
		t.Fatalf("sink difference (-got +want):\n%s", diff)
	}
}
