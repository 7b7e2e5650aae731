// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"context"
	"fmt"
	"time"
)

// Channel is the status-detail query that reports whether a move is done.
type Channel string

// Status channels
const (
	ValveChannel Channel = VerbGetStatusDetails
	PumpChannel  Channel = VerbGetPumpStatusDetails
)

func (c Channel) String() string {
	switch c {
	case ValveChannel:
		return "valve"
	case PumpChannel:
		return "pump"
	default:
		return string(c)
	}
}

// PollState is the state of the completion poller.
type PollState int

// Poll states
const (
	PollBusy PollState = iota
	PollDone
	PollFault
)

func (s PollState) String() string {
	switch s {
	case PollBusy:
		return "busy"
	case PollDone:
		return "done"
	case PollFault:
		return "fault"
	default:
		return "unknown"
	}
}

// nextPollState classifies one status-detail payload. An empty payload counts
// as busy. A PollFault result always comes with an error: a *DeviceFault for
// known abnormal codes, ErrUnknownCode or ErrMalformedResponse otherwise.
func nextPollState(payload string) (PollState, error) {
	if payload == "" {
		return PollBusy, nil
	}

	code, err := LookupStatus(payload)
	if err != nil {
		return PollFault, err
	}

	switch code.Value {
	case StatusDone:
		return PollDone, nil
	case StatusBusy:
		return PollBusy, nil
	default:
		return PollFault, newStatusFault(code)
	}
}

// WaitDone queries the status channel until the device reports done. While it
// reports busy, it sleeps one poll interval, clears stale input and queries
// again. There is no retry cap; ctx is only checked during the sleep, never
// in the middle of a transaction.
func (t *Transport) WaitDone(ctx context.Context, ch Channel) error {
	start := time.Now()
	polls := 0

	for {
		polls++
		t.cfg.metrics.incPollCount()

		resp, err := t.Transact(Cmd(string(ch)))
		if err != nil {
			return fmt.Errorf("%s status query: %w", ch, err)
		}

		state, err := nextPollState(resp.Data)
		switch state {
		case PollDone:
			t.log.Debug("move done", "channel", ch.String(), "polls", polls, "elapsed", time.Since(start))
			return nil
		case PollFault:
			t.cfg.metrics.incFaultCount()
			t.log.Warn("move failed", "channel", ch.String(), "payload", resp.Data, "error", err)
			return err
		}

		if err := t.cfg.sleep(ctx, t.PollInterval()); err != nil {
			return fmt.Errorf("waiting for %s: %w", ch, err)
		}
		if err := t.ClearInput(); err != nil {
			return err
		}
	}
}
