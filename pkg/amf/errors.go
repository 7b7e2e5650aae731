// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument indicates caller misuse detected before any I/O.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotConnected indicates that no transport is open.
	ErrNotConnected = errors.New("no AMF valve or pump connected")

	// ErrAlreadyConnected indicates that the device, or the physical port, already
	// has an open transport.
	ErrAlreadyConnected = errors.New("AMF valve or pump already connected")

	// ErrConnectionFailed indicates that the port could not be opened.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrSessionClosed indicates use of a Device after Disconnect. It matches
	// ErrNotConnected.
	ErrSessionClosed = fmt.Errorf("%w: session closed", ErrNotConnected)
)

var (
	// ErrTimeout indicates the answer terminator was not seen within the read timeout.
	ErrTimeout = errors.New("read timeout")

	// ErrMalformedResponse indicates an answer frame that cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnknownCode indicates a wire value absent from the error or status table.
	ErrUnknownCode = errors.New("unknown code")

	// ErrDeviceFault indicates a valid error or status code that reports a real
	// device condition. Use errors.As with *DeviceFault for the details.
	ErrDeviceFault = errors.New("device fault")
)

// FaultKind tells which vocabulary a DeviceFault came from.
type FaultKind int

// Fault kinds
const (
	ErrorFault FaultKind = iota
	StatusFault
)

func (k FaultKind) String() string {
	if k == StatusFault {
		return "status"
	}
	return "error"
}

// DeviceFault carries the numeric code and the vendor description of a device
// condition.
type DeviceFault struct {
	Kind        FaultKind
	Code        int
	Description string
	// Detail holds the long status description; empty for error faults.
	Detail string
}

func newErrorFault(code ErrorCode) *DeviceFault {
	return &DeviceFault{Kind: ErrorFault, Code: code.Code, Description: code.Description}
}

func newStatusFault(code StatusCode) *DeviceFault {
	return &DeviceFault{Kind: StatusFault, Code: code.Value, Description: code.Label, Detail: code.Description}
}

// Error implements the error interface
func (f *DeviceFault) Error() string {
	if f.Kind == StatusFault {
		return fmt.Sprintf("bad status %d: %s", f.Code, f.Description)
	}
	return fmt.Sprintf("error %d: %s", f.Code, f.Description)
}

// Is lets errors.Is(err, ErrDeviceFault) match any DeviceFault.
func (f *DeviceFault) Is(target error) bool {
	return target == ErrDeviceFault
}
