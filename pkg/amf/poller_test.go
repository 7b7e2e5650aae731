// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextPollState(t *testing.T) {
	tests := []struct {
		payload string
		want    PollState
		wantErr error
	}{
		{"0", PollDone, nil},
		{"000", PollDone, nil},
		{"255", PollBusy, nil},
		{"", PollBusy, nil},
		{"145", PollFault, ErrDeviceFault},
		{"224", PollFault, ErrDeviceFault},
		{"999", PollFault, ErrUnknownCode},
		{"busy", PollFault, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := nextPollState(tt.payload)
			assert.Equal(t, tt.want, got)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWaitDoneBusyBusyDone(t *testing.T) {
	p := newFakePort(answer("@255"), answer("@255"), answer("@0"))
	tr, sr := openTestTransport(t, p)

	require.NoError(t, tr.WaitDone(context.Background(), ValveChannel))

	assert.Equal(t, 2, sr.Count())
	assert.Equal(t, 2, p.Clears())
	assert.Equal(t, []string{"/1?9200\r", "/1?9200\r", "/1?9200\r"}, p.Writes())
	assert.Equal(t, []time.Duration{DefaultPollInterval, DefaultPollInterval}, sr.sleeps)
	assert.Equal(t, uint64(3), tr.Metrics().PollCount.Load())
}

func TestWaitDoneEmptyIsBusy(t *testing.T) {
	p := newFakePort(answer("@"), answer("@0"))
	tr, sr := openTestTransport(t, p)

	require.NoError(t, tr.WaitDone(context.Background(), PumpChannel))
	assert.Equal(t, 1, sr.Count())
	assert.Equal(t, []string{"/1?9100\r", "/1?9100\r"}, p.Writes())
}

func TestWaitDoneAbnormalStatus(t *testing.T) {
	p := newFakePort(answer("@145"), answer("@0"))
	tr, sr := openTestTransport(t, p)

	err := tr.WaitDone(context.Background(), ValveChannel)
	require.ErrorIs(t, err, ErrDeviceFault)

	var fault *DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, StatusFault, fault.Kind)
	assert.Equal(t, 145, fault.Code)
	assert.Equal(t, "Move out of range", fault.Description)

	assert.Len(t, p.Writes(), 1)
	assert.Equal(t, 0, sr.Count())
	assert.Equal(t, 0, p.Clears())
}

func TestWaitDoneUnknownStatus(t *testing.T) {
	p := newFakePort(answer("@123"))
	tr, _ := openTestTransport(t, p)

	err := tr.WaitDone(context.Background(), ValveChannel)
	require.ErrorIs(t, err, ErrUnknownCode)
	assert.NotErrorIs(t, err, ErrDeviceFault)
}

func TestWaitDoneCounterAnswerWithoutCounter(t *testing.T) {
	p := newFakePort(answer("`"), answer("`"), answer("@0"))
	tr, sr := openTestTransport(t, p, WithAnswerMode(AsynchronousWithCounter))

	err := tr.WaitDone(context.Background(), ValveChannel)
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.Len(t, p.Writes(), 1)
	assert.Equal(t, 0, sr.Count())
}

func TestWaitDoneErrorByte(t *testing.T) {
	p := newFakePort(answer("G"))
	tr, _ := openTestTransport(t, p)

	err := tr.WaitDone(context.Background(), ValveChannel)
	require.ErrorIs(t, err, ErrDeviceFault)

	var fault *DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 7, fault.Code)
}

func TestWaitDoneCancelledBetweenPolls(t *testing.T) {
	p := newFakePort(answer("@255"), answer("@0"))
	tr, sr := openTestTransport(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.WaitDone(ctx, ValveChannel)
	require.ErrorIs(t, err, context.Canceled)

	// The query in flight completed; nothing was left half-read.
	assert.Len(t, p.Writes(), 1)
	assert.Equal(t, 1, sr.Count())
	assert.Equal(t, 0, p.Clears())
}

func TestWaitDonePollIntervalOverride(t *testing.T) {
	p := newFakePort(answer("@255"), answer("@0"))
	tr, sr := openTestTransport(t, p, WithPollInterval(5*time.Millisecond))

	require.NoError(t, tr.WaitDone(context.Background(), ValveChannel))
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, sr.sleeps)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
