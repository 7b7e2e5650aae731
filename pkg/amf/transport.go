// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/valvestat/pkg/logger"
)

// Transport owns one open port and runs one transaction at a time on it.
type Transport struct {
	name string
	cfg  *config
	log  logger.Logger

	mu      sync.Mutex
	port    Port
	closed  bool
	addr    Address
	mode    AnswerMode
	counter string
	// pending holds bytes read past the last answer terminator.
	pending []byte
}

// OpenTransport claims name in the process-wide port registry and opens it.
func OpenTransport(name string, opts ...Option) (*Transport, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return openTransport(name, cfg)
}

func openTransport(name string, cfg *config) (*Transport, error) {
	t := &Transport{
		name: name,
		cfg:  cfg,
		log:  cfg.logger.With("port", name),
		addr: cfg.address,
		mode: cfg.mode,
	}

	if err := ports.claim(name, t); err != nil {
		return nil, err
	}

	port, err := cfg.opener(name, cfg.baudRate)
	if err != nil {
		ports.release(name, t)
		return nil, fmt.Errorf("%w: no AMF valve or pump found at %q: %w", ErrConnectionFailed, name, err)
	}
	t.port = port

	t.log.Debug("port opened", "baud", cfg.baudRate, "read_timeout", cfg.readTimeout)

	return t, nil
}

// Name returns the port name.
func (t *Transport) Name() string {
	return t.name
}

// Metrics returns the transport counters.
func (t *Transport) Metrics() *Metrics {
	return t.cfg.metrics
}

// Address returns the address commands are sent to.
func (t *Transport) Address() Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}

// SetAddress changes the address commands are sent to.
func (t *Transport) SetAddress(addr Address) error {
	if !addr.Valid() {
		return fmt.Errorf("%w: address 0x%02X", ErrInvalidArgument, byte(addr))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addr = addr
	return nil
}

// AnswerMode returns the answer mode used to decode answers.
func (t *Transport) AnswerMode() AnswerMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// SetAnswerMode changes the answer mode used to decode answers.
func (t *Transport) SetAnswerMode(mode AnswerMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: answer mode %d", ErrInvalidArgument, int(mode))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	return nil
}

// Counter returns the last move counter reported in AsynchronousWithCounter
// mode, or "" if none was seen.
func (t *Transport) Counter() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter
}

// PollInterval returns the wait between two status queries.
func (t *Transport) PollInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.interval(t.mode)
}

// Transact sends cmd and reads its answer. An answer whose status byte reports
// an error is returned together with a *DeviceFault.
func (t *Transport) Transact(cmd Command) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.transact(cmd)
}

// TransactBare is Transact for commands that complete synchronously; callers
// do not poll afterwards.
func (t *Transport) TransactBare(cmd Command) (*Response, error) {
	return t.Transact(cmd)
}

func (t *Transport) transact(cmd Command) (*Response, error) {
	if t.closed {
		return nil, ErrNotConnected
	}

	frame, err := EncodeCommand(t.addr, cmd)
	if err != nil {
		return nil, err
	}

	t.cfg.metrics.incTransactionCount()

	if err := t.write(frame); err != nil {
		return nil, err
	}

	raw, err := t.readAnswer()
	if err != nil {
		return nil, err
	}

	resp, err := DecodeResponse(raw, t.mode)
	if err != nil {
		t.cfg.metrics.incMalformedCount()
		t.log.Warn("malformed answer", "cmd", cmd.String(), "raw", FormatFrame(raw), "error", err)
		return nil, err
	}

	if resp.HasCounter() {
		t.counter = resp.Counter
	}

	code, err := resp.ErrorCode()
	if err != nil {
		t.log.Warn("unknown error byte", "cmd", cmd.String(), "raw", FormatFrame(raw))
		return resp, err
	}
	if !code.OK() {
		t.cfg.metrics.incFaultCount()
		fault := newErrorFault(code)
		t.log.Warn("device error", "cmd", cmd.String(), "code", fault.Code, "description", fault.Description)
		return resp, fault
	}

	return resp, nil
}

// Broadcast writes cmd to every device on the bus and reads nothing back.
func (t *Transport) Broadcast(cmd Command) error {
	frame, err := EncodeCommand(AddressBroadcast, cmd)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrNotConnected
	}

	t.cfg.metrics.incBroadcastCount()

	return t.write(frame)
}

// ClearInput discards any received bytes not yet consumed.
func (t *Transport) ClearInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrNotConnected
	}

	return t.clearInput()
}

func (t *Transport) clearInput() error {
	t.pending = nil
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to clear input on %s: %w", t.name, err)
	}
	t.trace(TraceCleared, nil)
	return nil
}

// Close closes the port and releases the registry claim, even if closing the
// port fails. Every later call returns ErrNotConnected.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrNotConnected
	}
	t.closed = true
	defer ports.release(t.name, t)

	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", t.name, err)
	}

	t.log.Debug("port closed")

	return nil
}

func (t *Transport) write(frame []byte) error {
	t.log.Debug("tx", "frame", FormatFrame(frame))
	t.trace(TraceSent, frame)

	n, err := t.port.Write(frame)
	t.cfg.metrics.addBytesSent(n)
	if err != nil {
		return fmt.Errorf("failed to write to %s: %w", t.name, err)
	}
	if n != len(frame) {
		return fmt.Errorf("short write to %s: %d of %d bytes", t.name, n, len(frame))
	}

	return nil
}

// readAnswer reads until the answer terminator or until the read timeout
// elapses. Bytes following the terminator are kept for the next answer.
func (t *Transport) readAnswer() ([]byte, error) {
	buf := t.pending
	t.pending = nil
	chunk := make([]byte, 64)
	deadline := time.Now().Add(t.cfg.readTimeout)

	for {
		if idx := bytes.Index(buf, []byte(EndAnswer)); idx >= 0 {
			end := idx + len(EndAnswer)
			if end < len(buf) {
				t.pending = append([]byte(nil), buf[end:]...)
			}
			raw := buf[:end]
			t.log.Debug("rx", "frame", FormatFrame(raw))
			t.trace(TraceReceived, raw)
			return raw, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.cfg.metrics.incTimeoutCount()
			t.trace(TraceTimedOut, buf)
			t.log.Warn("answer timed out", "timeout", t.cfg.readTimeout, "partial", FormatFrame(buf))
			return nil, fmt.Errorf("%w: no answer from %s within %v", ErrTimeout, t.name, t.cfg.readTimeout)
		}

		if err := t.port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", t.name, err)
		}

		n, err := t.port.Read(chunk)
		if n > 0 {
			t.cfg.metrics.addBytesReceived(n)
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read from %s: %w", t.name, err)
		}
	}
}

func (t *Transport) trace(kind TraceKind, frame []byte) {
	if t.cfg.tracer == nil {
		return
	}
	var cp []byte
	if frame != nil {
		cp = append([]byte(nil), frame...)
	}
	t.cfg.tracer.Trace(TraceEvent{Time: time.Now(), Port: t.name, Kind: kind, Frame: cp})
}
