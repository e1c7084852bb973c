// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uartrx

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
)

// Stats counts decoder outcomes since creation.
type Stats struct {
	// Frames is the number of bytes emitted.
	Frames uint32
	// Glitches is the number of falling edges rejected because the line was
	// high again at the start bit center.
	Glitches uint32
	// IgnoredEdges is the number of falling edges seen while framing.
	IgnoredEdges uint32
	// StrayTicks is the number of ticks seen while idle.
	StrayTicks uint32
	// Overruns is the number of frames discarded because ticks were lost.
	Overruns uint32
	// Dropped is the number of bytes decoded but not delivered because the
	// consumer was full. Only Dev reports it.
	Dropped uint32
}

func (s Stats) String() string {
	return fmt.Sprintf("frames=%d glitches=%d ignored_edges=%d stray_ticks=%d overruns=%d dropped=%d",
		s.Frames, s.Glitches, s.IgnoredEdges, s.StrayTicks, s.Overruns, s.Dropped)
}

type counters struct {
	frames       atomic.Uint32
	glitches     atomic.Uint32
	ignoredEdges atomic.Uint32
	strayTicks   atomic.Uint32
	overruns     atomic.Uint32
}

func (c *counters) snapshot() Stats {
	return Stats{
		Frames:       c.frames.Load(),
		Glitches:     c.glitches.Load(),
		IgnoredEdges: c.ignoredEdges.Load(),
		StrayTicks:   c.strayTicks.Load(),
		Overruns:     c.overruns.Load(),
	}
}

// Action describes what the decoder did with a Sample.
type Action uint8

const (
	// StartBit means the start bit was confirmed low at StartTick.
	StartBit Action = iota
	// Glitch means the line was high at StartTick and the frame was dropped.
	Glitch
	// DataBit means a data bit was stored.
	DataBit
	// Complete means the last data bit was stored and Byte was emitted.
	Complete
	// Abort means the frame was dropped on Overrun. Level is not meaningful.
	Abort
)

func (a Action) String() string {
	switch a {
	case StartBit:
		return "StartBit"
	case Glitch:
		return "Glitch"
	case DataBit:
		return "DataBit"
	case Complete:
		return "Complete"
	case Abort:
		return "Abort"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Sample is reported to DecoderOpts.Trace.
type Sample struct {
	// Tick is the tick count since the start edge, starting at 1.
	Tick   uint8
	Level  gpio.Level
	Action Action
	// Byte is only set when Action is Complete.
	Byte byte
}

func (s Sample) String() string {
	if s.Action == Complete {
		return fmt.Sprintf("%d:%s:%s:0x%02X", s.Tick, s.Level, s.Action, s.Byte)
	}
	return fmt.Sprintf("%d:%s:%s", s.Tick, s.Level, s.Action)
}
