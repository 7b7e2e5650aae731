// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/valvestat/pkg/logger"
)

func TestSwitchValveOutOfRange(t *testing.T) {
	p := newFakePort()
	dev, _ := newTestDevice(t, p, WithPortCount(12))

	err := dev.SwitchValve(context.Background(), 13, DirectionAny, false)
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = dev.SwitchValve(context.Background(), 0, DirectionClockwise, false)
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = dev.SwitchValve(context.Background(), 3, Direction(9), false)
	require.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, p.Writes())
}

func TestSwitchValve(t *testing.T) {
	p := newFakePort(answer("@"), answer("@255"), answer("@0"))
	dev, sr := newTestDevice(t, p, WithPortCount(6))

	require.NoError(t, dev.SwitchValve(context.Background(), 4, DirectionCounterClockwise, true))
	assert.Equal(t, []string{"/1O4R\r", "/1?9200\r", "/1?9200\r"}, p.Writes())
	assert.Equal(t, 1, sr.Count())
}

func TestConnectTwice(t *testing.T) {
	p := newFakePort()
	dev, _ := newTestDevice(t, p)

	err := dev.Connect()
	require.ErrorIs(t, err, ErrAlreadyConnected)
	assert.False(t, p.Closed())
	assert.True(t, dev.Connected())
}

func TestSecondDeviceOnSamePort(t *testing.T) {
	p := newFakePort()
	newTestDevice(t, p)

	other, err := NewDevice(portName(t), WithOpener(openerFor(newFakePort())), WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.ErrorIs(t, other.Connect(), ErrAlreadyConnected)
	assert.False(t, p.Closed())
}

func TestDisconnect(t *testing.T) {
	p := newFakePort()
	sr := &sleepRecorder{}
	dev, err := NewDevice(portName(t), testOptions(p, sr)...)
	require.NoError(t, err)

	require.ErrorIs(t, dev.Disconnect(), ErrNotConnected)

	require.NoError(t, dev.Connect())
	require.NoError(t, dev.Disconnect())
	assert.True(t, p.Closed())
	assert.False(t, PortInUse(dev.Port()))

	require.ErrorIs(t, dev.Disconnect(), ErrNotConnected)

	err = dev.Connect()
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = dev.ValvePosition()
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestDisconnectClosesOnError(t *testing.T) {
	p := newFakePort()
	p.closeErr = errors.New("io error")
	sr := &sleepRecorder{}
	dev, err := NewDevice(portName(t), testOptions(p, sr)...)
	require.NoError(t, err)
	require.NoError(t, dev.Connect())

	require.Error(t, dev.Disconnect())
	assert.False(t, dev.Connected())
	assert.False(t, PortInUse(dev.Port()))
}

func TestOperationsRequireConnection(t *testing.T) {
	dev, err := NewDevice(portName(t), WithLogger(logger.Discard()))
	require.NoError(t, err)

	ctx := context.Background()
	require.ErrorIs(t, dev.Home(ctx), ErrNotConnected)
	require.ErrorIs(t, dev.SwitchValve(ctx, 1, DirectionAny, false), ErrNotConnected)
	require.ErrorIs(t, dev.MovePlunger(ctx, 10, PlungerAbsolute), ErrNotConnected)
	require.ErrorIs(t, dev.Initialize(ctx, '2', Synchronous, 6), ErrNotConnected)
	require.ErrorIs(t, dev.Broadcast(Cmd(VerbHome)), ErrNotConnected)
	_, err = dev.ValvePosition()
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestInitialize(t *testing.T) {
	p := newFakePort(
		answer("@"), // @ADDR=
		answer("@"), // !50
		answer("@"), // !80
		answer("@"), // Z
		answer("@0"),
	)
	dev, _ := newTestDevice(t, p)

	require.NoError(t, dev.Initialize(context.Background(), '2', Asynchronous, 8))
	assert.Equal(t, []string{
		"/1@ADDR=2R\r",
		"/2!501\r",
		"/2!808\r",
		"/2ZR\r",
		"/2?9200\r",
	}, p.Writes())

	assert.Equal(t, Address('2'), dev.Address())
	assert.Equal(t, Asynchronous, dev.AnswerMode())
	assert.Equal(t, 8, dev.PortCount())
}

func TestInitializeInvalid(t *testing.T) {
	p := newFakePort()
	dev, _ := newTestDevice(t, p)
	ctx := context.Background()

	require.ErrorIs(t, dev.Initialize(ctx, AddressBroadcast, Synchronous, 6), ErrInvalidArgument)
	require.ErrorIs(t, dev.Initialize(ctx, '1', AnswerMode(3), 6), ErrInvalidArgument)
	require.ErrorIs(t, dev.Initialize(ctx, '1', Synchronous, 5), ErrInvalidArgument)
	assert.Empty(t, p.Writes())
}

func TestInitializeStopsOnFault(t *testing.T) {
	p := newFakePort(answer("@"), answer("C"))
	dev, _ := newTestDevice(t, p)

	err := dev.Initialize(context.Background(), '3', Synchronous, 6)
	require.ErrorIs(t, err, ErrDeviceFault)
	assert.Len(t, p.Writes(), 2)
}

func TestInitializeKeepsAnswerModeOnFault(t *testing.T) {
	p := newFakePort(answer("@"), answer("C"))
	dev, _ := newTestDevice(t, p)

	err := dev.Initialize(context.Background(), '2', AsynchronousWithCounter, 12)
	require.ErrorIs(t, err, ErrDeviceFault)
	assert.Equal(t, []string{"/1@ADDR=2R\r", "/2!502\r"}, p.Writes())
	assert.Equal(t, Synchronous, dev.AnswerMode())
	assert.Equal(t, Address('2'), dev.Address())
}

func TestHomeWithPump(t *testing.T) {
	p := newFakePort(answer("@"), answer("@0"), answer("@255"), answer("@0"))
	dev, sr := newTestDevice(t, p, WithPump(true))

	require.NoError(t, dev.Home(context.Background()))
	assert.Equal(t, []string{"/1ZR\r", "/1?9200\r", "/1?9100\r", "/1?9100\r"}, p.Writes())
	assert.Equal(t, 1, sr.Count())
}

func TestHomeValveFaultSkipsPump(t *testing.T) {
	p := newFakePort(answer("@"), answer("@226"))
	dev, _ := newTestDevice(t, p, WithPump(true))

	err := dev.Home(context.Background())
	var fault *DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 226, fault.Code)
	assert.Len(t, p.Writes(), 2)
}

func TestMovePlunger(t *testing.T) {
	p := newFakePort(answer("@"), answer("@0"))
	dev, _ := newTestDevice(t, p, WithPump(true))

	require.NoError(t, dev.MovePlunger(context.Background(), 1500, PlungerPickup))
	assert.Equal(t, []string{"/1P1500R\r", "/1?9100\r"}, p.Writes())

	require.ErrorIs(t, dev.MovePlunger(context.Background(), -1, PlungerAbsolute), ErrInvalidArgument)
	require.ErrorIs(t, dev.MovePlunger(context.Background(), 1, PlungerMode(4)), ErrInvalidArgument)
	assert.Len(t, p.Writes(), 2)
}

func TestValvePosition(t *testing.T) {
	p := newFakePort(answer("@5"), answer("@x"))
	dev, sr := newTestDevice(t, p)

	pos, err := dev.ValvePosition()
	require.NoError(t, err)
	assert.Equal(t, 5, pos)

	_, err = dev.ValvePosition()
	require.ErrorIs(t, err, ErrMalformedResponse)

	assert.Equal(t, []string{"/1?6\r", "/1?6\r"}, p.Writes())
	assert.Equal(t, 0, sr.Count())
}

func TestBareSettings(t *testing.T) {
	p := newFakePort(answer("@"), answer("@"), answer("@"), answer("@"), answer("@"), answer("@"), answer("@"))
	dev, _ := newTestDevice(t, p)

	require.NoError(t, dev.SetPlungerForce(2))
	require.NoError(t, dev.SetScaling(true))
	require.NoError(t, dev.SetSpeed(800))
	require.NoError(t, dev.SetAcceleration(2000))
	require.NoError(t, dev.SetDeceleration(100))
	require.NoError(t, dev.Halt())
	require.NoError(t, dev.HardStop())

	assert.Equal(t, []string{
		"/1!302\r",
		"/1N1R\r",
		"/1V800R\r",
		"/1L2000R\r",
		"/1l100R\r",
		"/1H\r",
		"/1T\r",
	}, p.Writes())

	require.ErrorIs(t, dev.SetPlungerForce(4), ErrInvalidArgument)
	require.ErrorIs(t, dev.SetSpeed(1601), ErrInvalidArgument)
	require.ErrorIs(t, dev.SetAcceleration(99), ErrInvalidArgument)
	require.ErrorIs(t, dev.SetDeceleration(59591), ErrInvalidArgument)
	assert.Len(t, p.Writes(), 7)
}

func TestIsHomed(t *testing.T) {
	p := newFakePort(answer("@1"), answer("@0"))
	dev, _ := newTestDevice(t, p)

	homed, err := dev.IsHomed()
	require.NoError(t, err)
	assert.True(t, homed)

	homed, err = dev.IsHomed()
	require.NoError(t, err)
	assert.False(t, homed)
}

func TestInfo(t *testing.T) {
	p := newFakePort(
		answer("@1.2.3"),
		answer("@ABCD"),
		answer("@1"),
		answer("@0"),
		answer("@6"),
		answer("@240"),
		answer("@1234"),
	)
	dev, _ := newTestDevice(t, p)

	info, err := dev.Info()
	require.NoError(t, err)
	assert.Equal(t, &Info{
		FirmwareVersion: "1.2.3",
		UID:             "ABCD",
		Address:         "1",
		AnswerMode:      "0",
		PortCount:       "6",
		SupplyVoltage:   "240",
		ValveMoves:      "1234",
	}, info)
}

func TestBroadcastAndWaitReady(t *testing.T) {
	p := newFakePort(answer("@255"), answer("@0"))
	dev, sr := newTestDevice(t, p)

	require.NoError(t, dev.Broadcast(Cmd(VerbHome)))
	require.NoError(t, dev.WaitReady(context.Background()))

	assert.Equal(t, []string{"/_ZR\r", "/1?9200\r", "/1?9200\r"}, p.Writes())
	assert.Equal(t, 1, sr.Count())
}

func TestStatus(t *testing.T) {
	p := newFakePort(answer("@255"), answer("@224"))
	dev, _ := newTestDevice(t, p)

	state, data, err := dev.Status(ValveChannel)
	require.NoError(t, err)
	assert.Equal(t, PollBusy, state)
	assert.Equal(t, "255", data)

	state, _, err = dev.Status(ValveChannel)
	assert.Equal(t, PollFault, state)
	require.ErrorIs(t, err, ErrDeviceFault)
}

func TestCounterMode(t *testing.T) {
	p := newFakePort(answer("`9"), answer("@0"))
	dev, sr := newTestDevice(t, p, WithAnswerMode(AsynchronousWithCounter))

	require.NoError(t, dev.Home(context.Background()))
	assert.Equal(t, "9", dev.Counter())
	assert.Equal(t, 0, sr.Count())
}

func TestNewDeviceInvalid(t *testing.T) {
	_, err := NewDevice("")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewDevice("/dev/ttyUSB0", WithPortCount(3))
	require.ErrorIs(t, err, ErrInvalidArgument)
}
