// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package amf implements the ASCII command protocol spoken by AMF rotary valves
// and syringe pumps (RVM, SPM, LSPOne).
//
// A host sends a command frame and reads exactly one answer frame back. There is
// no correlation identifier on the wire, so every exchange is strictly
// request/response and a move is only known to be finished once a status query
// reports it done. This package provides the frame codec, the error and status
// vocabularies, a serial transport with per-port exclusivity, the completion
// poller and the Device controller built on top of them.
package amf

import "time"

// Command framing
const (
	StartCommand = '/'
	EndCommand   = '\r'
	Execute      = 'R'
)

// Answer framing
const (
	StartAnswer   = '/'
	MasterAddress = '0'
	EndAnswer     = "\x03\r\n"

	// SystemMarker is the status byte that carries a move counter in
	// AsynchronousWithCounter mode.
	SystemMarker = '`'

	// minAnswerSize is start + master address + status byte.
	minAnswerSize = 3
)

// noExecutePrefixes lists verb prefixes that are executed immediately and
// must not carry the trailing R.
var noExecutePrefixes = [...]byte{'?', '!', 'H', 'T', 'Q', 'X', '$', '%', '#', '&', '*'}

// Serial defaults
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 1 * time.Second
)

// Polling intervals per answer mode
const (
	DefaultPollInterval = 50 * time.Millisecond
	CounterPollInterval = 1500 * time.Millisecond
)

// Configuration commands
const (
	VerbSetAddress          = "@ADDR=" // 1-9 or A-E
	VerbSetAnswerMode       = "!50"    // 0 sync, 1 async, 2 async + counter
	VerbSetValveConfig      = "!80"    // 4, 6, 8, 10 or 12 ports
	VerbResetValveCounter   = "!17"
	VerbSlowMode            = "-" // RVMFS only
	VerbFastMode            = "+" // RVMFS only
	VerbActivateRS232       = "@RS232"
	VerbActivateRS485       = "@RS485F"
	VerbSetPlungerForce     = "!30" // 0 high .. 3 low
	VerbSetPeakSpeed        = "V"   // 0-1600 pulses/s
	VerbSetAccelerationRate = "L"   // 100-59590 pulses/s^2
	VerbSetDecelerationRate = "l"   // 100-59590 pulses/s^2
	VerbSetScaling          = "N"   // 0 = 0.01 mm, 1 = 0.00125 mm
)

// Control commands
const (
	VerbReexecute           = "X"
	VerbRepeat              = "G"
	VerbRepeatSequenceStart = "g"
	VerbDelay               = "M"
	VerbHalt                = "H"
	VerbHardStop            = "T"
	VerbPowerOff            = "@POWEROFF"
)

// Initialization commands
const (
	VerbHome  = "Z"
	VerbHome2 = "Y"
)

// Valve commands
const (
	VerbSwitchShortestForce         = "B"
	VerbSwitchShortest              = "b"
	VerbSwitchClockwiseForce        = "I"
	VerbSwitchClockwise             = "i"
	VerbSwitchCounterClockwiseForce = "O"
	VerbSwitchCounterClockwise      = "o"
)

// Plunger commands
const (
	VerbAbsolutePosition  = "A" // 0-3000 (N=0) or 0-24000 (N=1)
	VerbAbsolutePosition2 = "a"
	VerbRelativePickup    = "P"
	VerbRelativePickup2   = "p"
	VerbRelativeDispense  = "D"
	VerbRelativeDispense2 = "d"
)

// Report commands
const (
	VerbGetStatus                = "Q"
	VerbGetPlungerPosition       = "?"
	VerbGetMaxSpeed              = "?2"
	VerbGetPlungerActualPosition = "?4"
	VerbGetValvePosition         = "?6"
	VerbGetValveMoves            = "?17"
	VerbGetValveMovesSinceLast   = "?18"
	VerbGetSpeedMode             = "?19"
	VerbGetFirmwareChecksum      = "?20"
	VerbGetFirmwareVersion       = "?23"
	VerbGetAcceleration          = "?25"
	VerbGetAddress               = "?26"
	VerbGetDeceleration          = "?27"
	VerbGetScaling               = "?28"
	VerbGetConfiguration         = "?76"
	VerbGetPlungerCurrent        = "?300" // x10 mA
	VerbGetAnswerMode            = "?500"
	VerbGetValvePortCount        = "?801"
	VerbReset                    = "$"
	VerbGetSupplyVoltage         = "*" // x0.1 V
	VerbGetUID                   = "?9000"
	VerbIsPumpInitialized        = "?9010" // 1 = homed
	VerbGetPumpStatusDetails     = "?9100"
	VerbGetStatusDetails         = "?9200"
)

// AnswerMode selects how the device frames its answers.
type AnswerMode int

// Answer mode values
const (
	Synchronous AnswerMode = iota
	Asynchronous
	AsynchronousWithCounter
)

// Valid reports whether m is a known answer mode.
func (m AnswerMode) Valid() bool {
	return m >= Synchronous && m <= AsynchronousWithCounter
}

// PollInterval returns the status polling interval used in this mode.
func (m AnswerMode) PollInterval() time.Duration {
	if m == AsynchronousWithCounter {
		return CounterPollInterval
	}
	return DefaultPollInterval
}

func (m AnswerMode) String() string {
	switch m {
	case Synchronous:
		return "synchronous"
	case Asynchronous:
		return "asynchronous"
	case AsynchronousWithCounter:
		return "asynchronous-counter"
	default:
		return "unknown"
	}
}

// Direction selects the rotation used by a valve switch.
type Direction int

// Direction values
const (
	DirectionAny Direction = iota
	DirectionClockwise
	DirectionCounterClockwise
)

func (d Direction) String() string {
	switch d {
	case DirectionAny:
		return "ANY"
	case DirectionClockwise:
		return "CW"
	case DirectionCounterClockwise:
		return "CCW"
	default:
		return "UNKNOWN"
	}
}

// PlungerMode selects how a plunger position is interpreted.
type PlungerMode int

// Plunger mode values
const (
	PlungerAbsolute PlungerMode = iota
	PlungerDispense
	PlungerPickup
)

func (m PlungerMode) String() string {
	switch m {
	case PlungerAbsolute:
		return "ABS"
	case PlungerDispense:
		return "DIS"
	case PlungerPickup:
		return "PIC"
	default:
		return "UNKNOWN"
	}
}

// ValidPortCounts lists the valve configurations accepted by VerbSetValveConfig.
var ValidPortCounts = [...]int{4, 6, 8, 10, 12}
