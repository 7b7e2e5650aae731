// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amftest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/valvestat/pkg/amf"
	"github.com/Thermoquad/valvestat/pkg/logger"
)

func newDevice(t *testing.T, v *Valve, opts ...amf.Option) *amf.Device {
	t.Helper()

	opts = append([]amf.Option{
		amf.WithOpener(v.Opener()),
		amf.WithLogger(logger.Discard()),
		amf.WithReadTimeout(amf.MinReadTimeout),
		amf.WithPollInterval(time.Millisecond),
	}, opts...)

	dev, err := amf.NewDevice("/dev/sim/"+t.Name(), opts...)
	require.NoError(t, err)
	require.NoError(t, dev.Connect())
	t.Cleanup(func() { _ = dev.Disconnect() })

	return dev
}

func TestValveInitializeAndSwitch(t *testing.T) {
	v := NewValve(6)
	v.SetBusyPolls(2)
	dev := newDevice(t, v)
	ctx := context.Background()

	require.NoError(t, dev.Initialize(ctx, '3', amf.Synchronous, 8))
	assert.True(t, v.Homed())

	require.NoError(t, dev.SwitchValve(ctx, 7, amf.DirectionClockwise, false))
	assert.Equal(t, 7, v.Position())

	pos, err := dev.ValvePosition()
	require.NoError(t, err)
	assert.Equal(t, 7, pos)
}

func TestValveRequiresHoming(t *testing.T) {
	v := NewValve(6)
	dev := newDevice(t, v)

	err := dev.SwitchValve(context.Background(), 2, amf.DirectionAny, false)
	require.ErrorIs(t, err, amf.ErrDeviceFault)
	assert.Equal(t, 0, v.Position())
}

func TestValveIgnoresOtherAddress(t *testing.T) {
	v := NewValve(6)
	dev := newDevice(t, v, amf.WithAddress('4'))

	_, err := dev.ValvePosition()
	require.ErrorIs(t, err, amf.ErrTimeout)
}

func TestValveBroadcast(t *testing.T) {
	v := NewValve(6)
	dev := newDevice(t, v)

	require.NoError(t, dev.Broadcast(amf.Cmd(amf.VerbHome)))
	require.NoError(t, dev.WaitReady(context.Background()))
	assert.True(t, v.Homed())
}

func TestValveFailVerb(t *testing.T) {
	v := NewValve(6)
	v.FailVerb(amf.VerbHome, 'J')
	dev := newDevice(t, v)

	err := dev.Home(context.Background())
	var fault *amf.DeviceFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 10, fault.Code)
	assert.Equal(t, "Valve overload", fault.Description)
}
