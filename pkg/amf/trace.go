// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import "time"

// TraceKind tells what happened on the link.
type TraceKind uint8

// Trace kinds
const (
	TraceSent TraceKind = iota + 1
	TraceReceived
	TraceCleared
	TraceTimedOut
)

func (k TraceKind) String() string {
	switch k {
	case TraceSent:
		return "TX"
	case TraceReceived:
		return "RX"
	case TraceCleared:
		return "CLR"
	case TraceTimedOut:
		return "TMO"
	default:
		return "???"
	}
}

// TraceEvent is one observed link event. Frame is nil for TraceCleared and
// holds the partial answer, if any, for TraceTimedOut.
type TraceEvent struct {
	Time  time.Time
	Port  string
	Kind  TraceKind
	Frame []byte
}

// Tracer receives every link event of a transport, in order. Trace is called
// with the transport lock held and must not call back into the transport.
type Tracer interface {
	Trace(ev TraceEvent)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(ev TraceEvent)

// Trace implements Tracer.
func (f TracerFunc) Trace(ev TraceEvent) { f(ev) }
