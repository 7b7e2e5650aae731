// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/valvestat/pkg/logger"
)

// fakePort answers each write with the next scripted answer.
type fakePort struct {
	mu          sync.Mutex
	answers     [][]byte
	rx          []byte
	writes      []string
	clears      int
	closed      bool
	closeErr    error
	readTimeout time.Duration
}

func newFakePort(answers ...string) *fakePort {
	p := &fakePort{}
	for _, a := range answers {
		p.answers = append(p.answers, []byte(a))
	}
	return p
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errors.New("port closed")
	}
	p.writes = append(p.writes, string(b))
	if len(p.answers) > 0 && !strings.HasPrefix(string(b), "/_") {
		p.rx = append(p.rx, p.answers[0]...)
		p.answers = p.answers[1:]
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.rx) == 0 {
		timeout := p.readTimeout
		p.mu.Unlock()
		time.Sleep(timeout)
		return 0, nil
	}
	defer p.mu.Unlock()

	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
	p.rx = nil
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

func (p *fakePort) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func (p *fakePort) Clears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

func (p *fakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// answer frames an answer body the way a device does.
func answer(body string) string {
	return "/0" + body + EndAnswer
}

func openerFor(p Port) PortOpener {
	return func(string, int) (Port, error) { return p, nil }
}

// sleepRecorder replaces the poll sleep and counts its calls.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sleeps)
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return optFunc(func(cfg *config) error {
		cfg.sleep = fn
		return nil
	})
}

func testOptions(p Port, sr *sleepRecorder, extra ...Option) []Option {
	opts := []Option{
		WithOpener(openerFor(p)),
		WithLogger(logger.Discard()),
		WithReadTimeout(MinReadTimeout),
		withSleep(sr.sleep),
	}
	return append(opts, extra...)
}

// portName returns a registry key unique to the running test.
func portName(t *testing.T) string {
	t.Helper()
	return "/dev/fake/" + t.Name()
}

func openTestTransport(t *testing.T, p *fakePort, extra ...Option) (*Transport, *sleepRecorder) {
	t.Helper()

	sr := &sleepRecorder{}
	tr, err := OpenTransport(portName(t), testOptions(p, sr, extra...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	return tr, sr
}

func newTestDevice(t *testing.T, p *fakePort, extra ...Option) (*Device, *sleepRecorder) {
	t.Helper()

	sr := &sleepRecorder{}
	dev, err := NewDevice(portName(t), testOptions(p, sr, extra...)...)
	require.NoError(t, err)
	require.NoError(t, dev.Connect())
	t.Cleanup(func() { _ = dev.Disconnect() })

	return dev, sr
}
