// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a device on the link.
type Address byte

// AddressBroadcast addresses every device on an RS485 bus at once.
const AddressBroadcast Address = '_'

// DefaultAddress is the factory address of every AMF product.
const DefaultAddress Address = '1'

// Valid reports whether a is a unicast device address (1-9, A-E).
func (a Address) Valid() bool {
	return (a >= '1' && a <= '9') || (a >= 'A' && a <= 'E')
}

// IsBroadcast reports whether a is the broadcast address.
func (a Address) IsBroadcast() bool {
	return a == AddressBroadcast
}

func (a Address) String() string {
	return string(rune(a))
}

// ParseAddress parses "1".."9", "A".."E" (any case), "10".."14" or "_".
func ParseAddress(s string) (Address, error) {
	if len(s) == 1 {
		a := Address(strings.ToUpper(s)[0])
		if a.Valid() || a.IsBroadcast() {
			return a, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return AddressFromInt(n)
	}
	return 0, fmt.Errorf("%w: address %q must be 1-9, A-E or _", ErrInvalidArgument, s)
}

// AddressFromInt maps 1-9 to '1'-'9' and 10-14 to 'A'-'E'.
func AddressFromInt(n int) (Address, error) {
	switch {
	case n >= 1 && n <= 9:
		return Address('0' + n), nil
	case n >= 10 && n <= 14:
		return Address('A' + n - 10), nil
	default:
		return 0, fmt.Errorf("%w: address %d out of range 1-14", ErrInvalidArgument, n)
	}
}

// Command is one protocol verb with its optional operand.
type Command struct {
	Verb     string
	Param    string
	HasParam bool
}

// Cmd creates a command without operand.
func Cmd(verb string) Command {
	return Command{Verb: verb}
}

// CmdInt creates a command with a decimal operand.
func CmdInt(verb string, n int) Command {
	return Command{Verb: verb, Param: strconv.Itoa(n), HasParam: true}
}

// CmdString creates a command with a raw string operand.
func CmdString(verb, s string) Command {
	return Command{Verb: verb, Param: s, HasParam: true}
}

// NeedsExecute reports whether the frame must end with the R execute suffix.
// Query, halt and reset style verbs are executed immediately.
func (c Command) NeedsExecute() bool {
	if c.Verb == "" {
		return false
	}
	for _, p := range noExecutePrefixes {
		if c.Verb[0] == p {
			return false
		}
	}
	return true
}

func (c Command) String() string {
	if c.HasParam {
		return c.Verb + c.Param
	}
	return c.Verb
}

// EncodeCommand builds the wire frame for cmd sent to addr:
//
//	'/' + address + verb [+ operand] ['R'] + '\r'
func EncodeCommand(addr Address, cmd Command) ([]byte, error) {
	if !addr.Valid() && !addr.IsBroadcast() {
		return nil, fmt.Errorf("%w: address 0x%02X", ErrInvalidArgument, byte(addr))
	}
	if cmd.Verb == "" {
		return nil, fmt.Errorf("%w: empty verb", ErrInvalidArgument)
	}

	frame := make([]byte, 0, len(cmd.Verb)+len(cmd.Param)+4)
	frame = append(frame, StartCommand, byte(addr))
	frame = append(frame, cmd.Verb...)
	if cmd.HasParam {
		frame = append(frame, cmd.Param...)
	}
	if cmd.NeedsExecute() {
		frame = append(frame, Execute)
	}
	frame = append(frame, EndCommand)

	return frame, nil
}

// MustEncodeCommand is like EncodeCommand but panics on error.
func MustEncodeCommand(addr Address, cmd Command) []byte {
	frame, err := EncodeCommand(addr, cmd)
	if err != nil {
		panic(fmt.Sprintf("amf: encode error: %v", err))
	}
	return frame
}

// switchVerbs selects the valve verb by direction and force.
var switchVerbs = map[Direction][2]string{
	DirectionAny:              {VerbSwitchShortest, VerbSwitchShortestForce},
	DirectionClockwise:        {VerbSwitchClockwise, VerbSwitchClockwiseForce},
	DirectionCounterClockwise: {VerbSwitchCounterClockwise, VerbSwitchCounterClockwiseForce},
}

// SwitchVerb returns the valve verb for a direction; forced selects the
// variant that moves even when the valve is already on the target port.
func SwitchVerb(dir Direction, forced bool) (string, error) {
	verbs, ok := switchVerbs[dir]
	if !ok {
		return "", fmt.Errorf("%w: direction must be one of ANY, CW, CCW", ErrInvalidArgument)
	}
	if forced {
		return verbs[1], nil
	}
	return verbs[0], nil
}

// plungerVerbs selects the plunger verb by movement mode.
var plungerVerbs = map[PlungerMode]string{
	PlungerAbsolute: VerbAbsolutePosition,
	PlungerDispense: VerbRelativeDispense,
	PlungerPickup:   VerbRelativePickup,
}

// PlungerVerb returns the plunger verb for a movement mode.
func PlungerVerb(mode PlungerMode) (string, error) {
	verb, ok := plungerVerbs[mode]
	if !ok {
		return "", fmt.Errorf("%w: movement must be one of ABS, DIS, PIC", ErrInvalidArgument)
	}
	return verb, nil
}

// ParseDirection parses ANY, CW or CCW (any case).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "ANY", "":
		return DirectionAny, nil
	case "CW":
		return DirectionClockwise, nil
	case "CCW":
		return DirectionCounterClockwise, nil
	}
	return 0, fmt.Errorf("%w: direction %q must be one of ANY, CW, CCW", ErrInvalidArgument, s)
}

// ParsePlungerMode parses ABS, DIS or PIC (any case).
func ParsePlungerMode(s string) (PlungerMode, error) {
	switch strings.ToUpper(s) {
	case "ABS", "":
		return PlungerAbsolute, nil
	case "DIS":
		return PlungerDispense, nil
	case "PIC":
		return PlungerPickup, nil
	}
	return 0, fmt.Errorf("%w: movement %q must be one of ABS, DIS, PIC", ErrInvalidArgument, s)
}
