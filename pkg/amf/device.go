// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Thermoquad/valvestat/pkg/logger"
)

// Plunger and motion limits
const (
	MaxPlungerForce  = 3
	MaxPeakSpeed     = 1600
	MinRampRate      = 100
	MaxRampRate      = 59590
	plungerHomedFlag = "1"
)

// Device is one AMF valve or valve+pump on a serial port.
//
// A Device is created disconnected. Connect opens its transport and
// Disconnect closes it for good; a disconnected Device cannot be reused.
type Device struct {
	port string
	cfg  *config
	log  logger.Logger

	mu        sync.Mutex
	transport *Transport
	closed    bool
	portCount int
}

// NewDevice creates a Device for the named port. No I/O happens until Connect.
func NewDevice(port string, opts ...Option) (*Device, error) {
	if port == "" {
		return nil, fmt.Errorf("%w: empty port name", ErrInvalidArgument)
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Device{
		port:      port,
		cfg:       cfg,
		log:       cfg.logger.With("port", port),
		portCount: cfg.portCount,
	}, nil
}

// Port returns the port name.
func (d *Device) Port() string {
	return d.port
}

// HasPump reports whether the device is a dual valve and syringe pump.
func (d *Device) HasPump() bool {
	return d.cfg.pump
}

// Metrics returns the transport counters.
func (d *Device) Metrics() *Metrics {
	return d.cfg.metrics
}

// PortCount returns the configured number of valve ports.
func (d *Device) PortCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.portCount
}

// Connected reports whether the transport is open.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport != nil
}

// Connect opens the transport. It fails with ErrAlreadyConnected if the
// Device, or another Device in this process, already has the port open.
func (d *Device) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrSessionClosed
	}
	if d.transport != nil {
		return fmt.Errorf("%w at %q", ErrAlreadyConnected, d.port)
	}

	t, err := openTransport(d.port, d.cfg)
	if err != nil {
		return err
	}
	d.transport = t

	d.log.Info("connected", "address", t.Address().String(), "pump", d.cfg.pump)

	return nil
}

// Disconnect closes the transport. The Device is unusable afterwards.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport == nil {
		return ErrNotConnected
	}

	err := d.transport.Close()
	d.transport = nil
	d.closed = true

	d.log.Info("disconnected")

	return err
}

func (d *Device) conn() (*Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport == nil {
		if d.closed {
			return nil, ErrSessionClosed
		}
		return nil, ErrNotConnected
	}
	return d.transport, nil
}

// Address returns the session address.
func (d *Device) Address() Address {
	if t, err := d.conn(); err == nil {
		return t.Address()
	}
	return d.cfg.address
}

// AnswerMode returns the session answer mode.
func (d *Device) AnswerMode() AnswerMode {
	if t, err := d.conn(); err == nil {
		return t.AnswerMode()
	}
	return d.cfg.mode
}

// Counter returns the last move counter reported in AsynchronousWithCounter mode.
func (d *Device) Counter() string {
	if t, err := d.conn(); err == nil {
		return t.Counter()
	}
	return ""
}

// Initialize assigns the address, answer mode and valve configuration, then
// homes the device. The address command goes to the address the device
// currently answers on, unlike the vendor example which addresses it to the
// new one; later commands use the new address. If the device rejects the
// answer mode the session keeps its previous mode.
func (d *Device) Initialize(ctx context.Context, addr Address, mode AnswerMode, portCount int) error {
	if !addr.Valid() {
		return fmt.Errorf("%w: address %q must be 1-9 or A-E", ErrInvalidArgument, addr.String())
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: answer mode %d", ErrInvalidArgument, int(mode))
	}
	if !ValidPortCount(portCount) {
		return fmt.Errorf("%w: port count %d must be one of %v", ErrInvalidArgument, portCount, ValidPortCounts)
	}

	t, err := d.conn()
	if err != nil {
		return err
	}

	if _, err := t.TransactBare(CmdString(VerbSetAddress, addr.String())); err != nil {
		return fmt.Errorf("set address: %w", err)
	}
	if err := t.SetAddress(addr); err != nil {
		return err
	}

	prev := t.AnswerMode()
	if err := t.SetAnswerMode(mode); err != nil {
		return err
	}
	if _, err := t.TransactBare(CmdInt(VerbSetAnswerMode, int(mode))); err != nil {
		_ = t.SetAnswerMode(prev)
		return fmt.Errorf("set answer mode: %w", err)
	}

	if _, err := t.TransactBare(CmdInt(VerbSetValveConfig, portCount)); err != nil {
		return fmt.Errorf("set valve configuration: %w", err)
	}
	d.mu.Lock()
	d.portCount = portCount
	d.mu.Unlock()

	d.log.Info("initialized", "address", addr.String(), "mode", mode.String(), "ports", portCount)

	return d.Home(ctx)
}

// Home homes the valve and waits for it, then waits for the pump on dual
// devices.
func (d *Device) Home(ctx context.Context) error {
	t, err := d.conn()
	if err != nil {
		return err
	}

	if _, err := t.Transact(Cmd(VerbHome)); err != nil {
		return fmt.Errorf("home: %w", err)
	}
	if err := t.WaitDone(ctx, ValveChannel); err != nil {
		return fmt.Errorf("home: %w", err)
	}
	d.log.Info("valve homing complete")

	if d.cfg.pump {
		if err := t.WaitDone(ctx, PumpChannel); err != nil {
			return fmt.Errorf("home: %w", err)
		}
		d.log.Info("pump homing complete")
	}

	return nil
}

// SwitchValve turns the valve to position and waits until it gets there.
func (d *Device) SwitchValve(ctx context.Context, position int, dir Direction, forced bool) error {
	verb, err := SwitchVerb(dir, forced)
	if err != nil {
		return err
	}

	portCount := d.PortCount()
	if position < 1 || position > portCount {
		return fmt.Errorf("%w: position %d must be in 1-%d", ErrInvalidArgument, position, portCount)
	}

	t, err := d.conn()
	if err != nil {
		return err
	}

	if _, err := t.Transact(CmdInt(verb, position)); err != nil {
		return fmt.Errorf("switch to %d: %w", position, err)
	}
	if err := t.WaitDone(ctx, ValveChannel); err != nil {
		return fmt.Errorf("switch to %d: %w", position, err)
	}

	d.log.Info("valve in position", "position", position, "direction", dir.String(), "forced", forced)

	return nil
}

// MovePlunger moves the plunger and waits on the pump channel until it stops.
func (d *Device) MovePlunger(ctx context.Context, position int, mode PlungerMode) error {
	verb, err := PlungerVerb(mode)
	if err != nil {
		return err
	}
	if position < 0 {
		return fmt.Errorf("%w: plunger position %d is negative", ErrInvalidArgument, position)
	}

	t, err := d.conn()
	if err != nil {
		return err
	}

	if _, err := t.Transact(CmdInt(verb, position)); err != nil {
		return fmt.Errorf("move plunger: %w", err)
	}
	if err := t.WaitDone(ctx, PumpChannel); err != nil {
		return fmt.Errorf("move plunger: %w", err)
	}

	d.log.Info("plunger moved", "position", position, "mode", mode.String())

	return nil
}

// ValvePosition reads the current valve port.
func (d *Device) ValvePosition() (int, error) {
	return d.queryInt(VerbGetValvePosition)
}

// PlungerPosition reads the current plunger position.
func (d *Device) PlungerPosition() (int, error) {
	return d.queryInt(VerbGetPlungerPosition)
}

// IsHomed reports whether the device has been homed since power-up.
func (d *Device) IsHomed() (bool, error) {
	data, err := d.Query(VerbIsPumpInitialized)
	if err != nil {
		return false, err
	}
	return data == plungerHomedFlag, nil
}

// SetPlungerForce sets the plunger force, 0 (high) to 3 (low).
func (d *Device) SetPlungerForce(force int) error {
	if force < 0 || force > MaxPlungerForce {
		return fmt.Errorf("%w: plunger force %d must be in 0-%d", ErrInvalidArgument, force, MaxPlungerForce)
	}
	return d.bare(CmdInt(VerbSetPlungerForce, force))
}

// SetScaling selects the plunger step: fine is 0.00125 mm, coarse 0.01 mm.
func (d *Device) SetScaling(fine bool) error {
	n := 0
	if fine {
		n = 1
	}
	return d.bare(CmdInt(VerbSetScaling, n))
}

// SetSpeed sets the plunger peak speed in pulses/s.
func (d *Device) SetSpeed(pulses int) error {
	if pulses < 0 || pulses > MaxPeakSpeed {
		return fmt.Errorf("%w: speed %d must be in 0-%d", ErrInvalidArgument, pulses, MaxPeakSpeed)
	}
	return d.bare(CmdInt(VerbSetPeakSpeed, pulses))
}

// SetAcceleration sets the plunger acceleration rate in pulses/s^2.
func (d *Device) SetAcceleration(rate int) error {
	if err := checkRampRate("acceleration", rate); err != nil {
		return err
	}
	return d.bare(CmdInt(VerbSetAccelerationRate, rate))
}

// SetDeceleration sets the plunger deceleration rate in pulses/s^2.
func (d *Device) SetDeceleration(rate int) error {
	if err := checkRampRate("deceleration", rate); err != nil {
		return err
	}
	return d.bare(CmdInt(VerbSetDecelerationRate, rate))
}

func checkRampRate(name string, rate int) error {
	if rate < MinRampRate || rate > MaxRampRate {
		return fmt.Errorf("%w: %s %d must be in %d-%d", ErrInvalidArgument, name, rate, MinRampRate, MaxRampRate)
	}
	return nil
}

// Halt pauses the running command sequence.
func (d *Device) Halt() error {
	return d.bare(Cmd(VerbHalt))
}

// HardStop stops any move immediately.
func (d *Device) HardStop() error {
	return d.bare(Cmd(VerbHardStop))
}

// Query runs a report verb and returns its payload.
func (d *Device) Query(verb string) (string, error) {
	resp, err := d.Send(Cmd(verb))
	if err != nil {
		return "", err
	}
	return resp.Data, nil
}

// Send runs one bare transaction and returns the decoded answer.
func (d *Device) Send(cmd Command) (*Response, error) {
	t, err := d.conn()
	if err != nil {
		return nil, err
	}
	resp, err := t.TransactBare(cmd)
	if err != nil {
		return resp, fmt.Errorf("%s: %w", cmd.String(), err)
	}
	return resp, nil
}

// Broadcast sends cmd to every device on the bus without waiting for answers.
// Callers wait on each addressed device with WaitReady.
func (d *Device) Broadcast(cmd Command) error {
	t, err := d.conn()
	if err != nil {
		return err
	}
	return t.Broadcast(cmd)
}

// WaitReady waits until the valve, and the pump on dual devices, report done.
func (d *Device) WaitReady(ctx context.Context) error {
	t, err := d.conn()
	if err != nil {
		return err
	}
	if err := t.WaitDone(ctx, ValveChannel); err != nil {
		return err
	}
	if d.cfg.pump {
		return t.WaitDone(ctx, PumpChannel)
	}
	return nil
}

// Status reads the valve status detail without waiting.
func (d *Device) Status(ch Channel) (PollState, string, error) {
	data, err := d.Query(string(ch))
	if err != nil {
		return PollFault, "", err
	}
	state, err := nextPollState(data)
	return state, data, err
}

// Info collects the device identification and configuration.
type Info struct {
	FirmwareVersion string
	UID             string
	Address         string
	AnswerMode      string
	PortCount       string
	SupplyVoltage   string
	ValveMoves      string
}

// Info reads the identification and configuration report values.
func (d *Device) Info() (*Info, error) {
	info := &Info{}
	fields := []struct {
		verb string
		dst  *string
	}{
		{VerbGetFirmwareVersion, &info.FirmwareVersion},
		{VerbGetUID, &info.UID},
		{VerbGetAddress, &info.Address},
		{VerbGetAnswerMode, &info.AnswerMode},
		{VerbGetValvePortCount, &info.PortCount},
		{VerbGetSupplyVoltage, &info.SupplyVoltage},
		{VerbGetValveMoves, &info.ValveMoves},
	}

	for _, f := range fields {
		data, err := d.Query(f.verb)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", FormatVerb(f.verb), err)
		}
		*f.dst = data
	}

	return info, nil
}

func (d *Device) bare(cmd Command) error {
	_, err := d.Send(cmd)
	return err
}

func (d *Device) queryInt(verb string) (int, error) {
	data, err := d.Query(verb)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %s payload %q is not a number", ErrMalformedResponse, FormatVerb(verb), data)
	}
	return n, nil
}
