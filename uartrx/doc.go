// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uartrx implements a software UART receiver.
//
// A frame is detected from a falling edge on the line. The line is then
// sampled at twice the baud rate and read only on odd ticks, which land at the
// center of each bit cell:
//
//	tick:   1     3     5     7     9     11    13    15    17
//	bit:  start   d0    d1    d2    d3    d4    d5    d6    d7
//
// Data bits are least significant first. The start bit must still be low at
// tick 1, otherwise the edge is treated as a glitch and discarded. There is no
// stop bit check; the byte is emitted at tick 17 and the edge detector is
// re-armed in the same tick.
//
// Decoder is the bare state machine. It can be driven from interrupt
// handlers on a microcontroller, or from tests, through Step. Dev binds a
// Decoder to a periph.io gpio.PinIn on a host.
//
// Tick-to-tick jitter must stay well below a quarter bit period. On a non
// real-time OS this limits the usable baud rate to a few thousand bits per
// second. Dev also times tick 1 from when the edge is handled, not from the
// edge itself; wakeup latency of the edge watcher shifts every sample toward
// the next cell and eats into the same margin.
package uartrx
