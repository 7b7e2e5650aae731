// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"fmt"
	"strconv"
)

// ErrorCode is the meaning of the status byte carried by every answer frame.
type ErrorCode struct {
	Code        int
	Description string
}

// OK reports whether the code is the "no error" sentinel.
func (e ErrorCode) OK() bool {
	return e.Code == 0
}

// StatusCode is the meaning of a status-detail query result.
type StatusCode struct {
	Value       int
	Label       string
	Description string
}

// Status values with protocol meaning
const (
	StatusDone = 0
	StatusBusy = 255
)

// ErrorCodes maps the answer status byte to its error code.
// Both '@' and '`' mean no error; the latter is also the counter marker.
var ErrorCodes = map[byte]ErrorCode{
	'@': {0, "No Error"},
	'`': {0, "No Error"},
	'A': {1, "Initialization"},
	'B': {2, "Invalid command"},
	'C': {3, "Invalid operand"},
	'D': {4, "Missing trailing [R]"},
	'G': {7, "Device not initialized"},
	'H': {8, "Internal failure (valve)"},
	'I': {9, "Plunger overload"},
	'J': {10, "Valve overload"},
	'N': {14, "A/D converter failure"},
	'O': {15, "Command overflow"},
}

// StatusCodes maps the 3-digit status-detail value to its meaning.
var StatusCodes = map[string]StatusCode{
	"255": {255, "Busy", "Valve currently executing an instruction."},
	"000": {0, "Done", "Valve available for next instruction."},
	"128": {128, "Unknown command", "Check that the command is written properly"},
	"144": {144, "Not homed", "You forgot the homing! Otherwise, check that you have the right port configuration and try again."},
	"145": {145, "Move out of range", "You’re probably trying to do a relative positioning and are too close to the limits."},
	"146": {146, "Speed out of range", "Check the speed that you’re trying to go at."},
	"224": {224, "Blocked", "Something prevented the valve to move."},
	"225": {225, "Sensor error", "Unable to read position sensor. This probably means that the cable is disconnected."},
	"226": {226, "Missing main reference", "Unable to find the valve’s main reference magnet " +
		"during homing. This can mean that a reference magnet " +
		"of the valve is bad/missing or that the motor is " +
		"blocked during homing. Please also check motor " +
		"cables and crimp."},
	"227": {227, "Missing reference", "Unable to find a valve’s reference magnet during " +
		"homing. Please check that you have the correct valve " +
		"number configuration with command \"/1?801\". If " +
		"not, change it according to the valve you are working " +
		"with. This can also mean that a reference magnet of " +
		"the valve is bad/missing or that the motor is blocked " +
		"during homing."},
	"228": {228, "Bad reference polarity", "One of the magnets of the reference valve has a bad " +
		"polarity. Please check that you have the correct valve " +
		"number configuration with command \"/1?801\". If " +
		"not, change it according to the valve you are working " +
		"with. This can also mean that a reference magnet has " +
		"been assembled in the wrong orientation in the valve."},
}

// LookupError returns the error code for a status byte. Lowercase letters are
// folded to uppercase first.
func LookupError(b byte) (ErrorCode, error) {
	if b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	code, ok := ErrorCodes[b]
	if !ok {
		return ErrorCode{}, fmt.Errorf("%w: error byte %q", ErrUnknownCode, b)
	}
	return code, nil
}

// LookupStatus returns the status code for a decimal status-detail payload.
// "0", "00" and "000" all resolve to the same entry.
func LookupStatus(s string) (StatusCode, error) {
	key, err := statusKey(s)
	if err != nil {
		return StatusCode{}, err
	}
	code, ok := StatusCodes[key]
	if !ok {
		return StatusCode{}, fmt.Errorf("%w: status %q", ErrUnknownCode, s)
	}
	return code, nil
}

// statusKey normalizes a decimal payload to the 3-digit table key.
func statusKey(s string) (string, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 999 {
		return "", fmt.Errorf("%w: status payload %q is not a status code", ErrMalformedResponse, s)
	}
	return fmt.Sprintf("%03d", n), nil
}
