// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package amftest provides a simulated AMF valve that satisfies amf.Port, for
// tests that need a device answering real frames.
package amftest

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

// Valve simulates one AMF rotary valve, optionally with a pump, behind a
// serial port.
type Valve struct {
	mu sync.Mutex

	address   amf.Address
	ports     int
	position  int
	plunger   int
	homed     bool
	busyPolls int
	busy      int
	faults    map[string]byte

	rx          []byte
	frames      []string
	clears      int
	closed      bool
	readTimeout time.Duration
}

var _ amf.Port = (*Valve)(nil)

// NewValve creates a powered-up, unhomed valve at the factory address.
func NewValve(ports int) *Valve {
	return &Valve{
		address: amf.DefaultAddress,
		ports:   ports,
		faults:  make(map[string]byte),
	}
}

// SetHomed marks the valve as already homed.
func (v *Valve) SetHomed(homed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.homed = homed
	if homed && v.position == 0 {
		v.position = 1
	}
}

// SetBusyPolls sets how many status queries report busy after each move.
func (v *Valve) SetBusyPolls(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.busyPolls = n
}

// FailVerb makes every command starting with verb answer with errByte.
func (v *Valve) FailVerb(verb string, errByte byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults[verb] = errByte
}

// Position returns the simulated valve port.
func (v *Valve) Position() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// Homed reports whether the valve has been homed.
func (v *Valve) Homed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.homed
}

// Frames returns every command frame received.
func (v *Valve) Frames() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.frames...)
}

// Closed reports whether the port was closed.
func (v *Valve) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Opener returns an amf.PortOpener that always yields v.
func (v *Valve) Opener() amf.PortOpener {
	return func(string, int) (amf.Port, error) { return v, nil }
}

func (v *Valve) Write(b []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, errors.New("amftest: write on closed port")
	}
	v.frames = append(v.frames, string(b))
	if body, ok := v.handle(string(b)); ok {
		v.rx = append(v.rx, "/0"+body+amf.EndAnswer...)
	}
	return len(b), nil
}

func (v *Valve) Read(b []byte) (int, error) {
	v.mu.Lock()
	if len(v.rx) == 0 {
		timeout := v.readTimeout
		closed := v.closed
		v.mu.Unlock()
		if closed {
			return 0, errors.New("amftest: read on closed port")
		}
		time.Sleep(timeout)
		return 0, nil
	}
	defer v.mu.Unlock()

	n := copy(b, v.rx)
	v.rx = v.rx[n:]
	return n, nil
}

func (v *Valve) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *Valve) ResetInputBuffer() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clears++
	v.rx = nil
	return nil
}

func (v *Valve) SetReadTimeout(t time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readTimeout = t
	return nil
}

// handle executes one frame and returns the answer body. Frames for another
// address and broadcast frames get no answer.
func (v *Valve) handle(frame string) (string, bool) {
	frame = strings.TrimSuffix(frame, "\r")
	if len(frame) < 3 || frame[0] != amf.StartCommand {
		return "", false
	}
	addr := amf.Address(frame[1])
	if addr != v.address && !addr.IsBroadcast() {
		return "", false
	}

	body := frame[2:]
	if cmd := amf.Cmd(body); cmd.NeedsExecute() {
		if !strings.HasSuffix(body, string(rune(amf.Execute))) {
			return "D", !addr.IsBroadcast()
		}
		body = body[:len(body)-1]
	}

	answer := v.execute(body)
	return answer, !addr.IsBroadcast()
}

func (v *Valve) execute(body string) string {
	if body == "" {
		return "B"
	}
	for verb, errByte := range v.faults {
		if strings.HasPrefix(body, verb) {
			return string(rune(errByte))
		}
	}

	switch {
	case strings.HasPrefix(body, amf.VerbSetAddress):
		a := body[len(amf.VerbSetAddress):]
		if len(a) != 1 || !amf.Address(a[0]).Valid() {
			return "C"
		}
		v.address = amf.Address(a[0])
		return "@"
	case strings.HasPrefix(body, amf.VerbSetAnswerMode):
		return "@"
	case strings.HasPrefix(body, amf.VerbSetValveConfig):
		n, err := strconv.Atoi(body[len(amf.VerbSetValveConfig):])
		if err != nil {
			return "C"
		}
		v.ports = n
		return "@"
	case body == amf.VerbGetStatusDetails, body == amf.VerbGetPumpStatusDetails:
		if v.busy > 0 {
			v.busy--
			return "@255"
		}
		return "@0"
	case body == amf.VerbGetValvePosition:
		return "@" + strconv.Itoa(v.position)
	case body == amf.VerbGetPlungerPosition:
		return "@" + strconv.Itoa(v.plunger)
	case body == amf.VerbIsPumpInitialized:
		if v.homed {
			return "@1"
		}
		return "@0"
	case body == amf.VerbGetFirmwareVersion:
		return "@1.4.2"
	case body == amf.VerbGetUID:
		return "@SIM0001"
	case body == amf.VerbGetAddress:
		return "@" + v.address.String()
	case body == amf.VerbGetAnswerMode:
		return "@0"
	case body == amf.VerbGetValvePortCount:
		return "@" + strconv.Itoa(v.ports)
	case body == amf.VerbGetSupplyVoltage:
		return "@240"
	case body == amf.VerbGetValveMoves:
		return "@0"
	case body == amf.VerbHome:
		v.homed = true
		v.position = 1
		v.plunger = 0
		v.busy = v.busyPolls
		return "@"
	case body == amf.VerbHalt, body == amf.VerbHardStop:
		v.busy = 0
		return "@"
	}

	switch body[0] {
	case 'b', 'B', 'i', 'I', 'o', 'O':
		if !v.homed {
			return "G"
		}
		n, err := strconv.Atoi(body[1:])
		if err != nil || n < 1 || n > v.ports {
			return "C"
		}
		v.position = n
		v.busy = v.busyPolls
		return "@"
	case 'A', 'P', 'D':
		if !v.homed {
			return "G"
		}
		n, err := strconv.Atoi(body[1:])
		if err != nil {
			return "C"
		}
		switch body[0] {
		case 'A':
			v.plunger = n
		case 'P':
			v.plunger += n
		case 'D':
			v.plunger -= n
		}
		v.busy = v.busyPolls
		return "@"
	case '!', 'V', 'L', 'l', 'N':
		return "@"
	}

	return "B"
}
