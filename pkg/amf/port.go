// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the byte transport a Transport drives. go.bug.st/serial ports
// satisfy it directly.
type Port interface {
	io.ReadWriteCloser
	// ResetInputBuffer discards bytes received but not yet read.
	ResetInputBuffer() error
	// SetReadTimeout bounds a single Read; a Read that times out returns 0, nil.
	SetReadTimeout(t time.Duration) error
}

// PortOpener opens the named port at the given baud rate.
type PortOpener func(name string, baudRate int) (Port, error)

// OpenSerialPort opens a serial port 8N1, the only framing AMF products use.
func OpenSerialPort(name string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	return port, nil
}
