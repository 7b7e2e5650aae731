// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Thermoquad/valvestat/pkg/logger"
)

// Limits for the session timings.
const (
	MinReadTimeout  = 10 * time.Millisecond
	MaxReadTimeout  = 60 * time.Second
	MinPollInterval = 1 * time.Millisecond
	MaxPollInterval = 60 * time.Second
)

// config holds the settings shared by a Device and its Transport.
type config struct {
	baudRate    int
	readTimeout time.Duration

	// pollInterval overrides the answer mode's interval when non-zero.
	pollInterval time.Duration

	// Session parameters used until Initialize assigns new ones.
	address   Address
	mode      AnswerMode
	portCount int
	pump      bool

	opener  PortOpener
	logger  logger.Logger
	tracer  Tracer
	metrics *Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		baudRate:    DefaultBaudRate,
		readTimeout: DefaultReadTimeout,
		address:     DefaultAddress,
		mode:        Synchronous,
		portCount:   6,
		opener:      OpenSerialPort,
		logger:      logger.GetLogger(),
		metrics:     &Metrics{},
		sleep:       sleepContext,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// interval returns the poll interval for the given answer mode.
func (cfg *config) interval(mode AnswerMode) time.Duration {
	if cfg.pollInterval > 0 {
		return cfg.pollInterval
	}
	return mode.PollInterval()
}

// Option is a functional option for configuring a Device or Transport.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithBaudRate sets the serial baud rate. Default is 9600.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *config) error {
		if baud <= 0 {
			return fmt.Errorf("%w: baud rate %d", ErrInvalidArgument, baud)
		}
		cfg.baudRate = baud
		return nil
	})
}

// WithReadTimeout bounds how long a transaction waits for the answer
// terminator. It is fixed for the lifetime of the session.
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("%w: read timeout %v out of range [%v, %v]", ErrInvalidArgument, d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d
		return nil
	})
}

// WithPollInterval overrides the status polling interval chosen by the answer mode.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("%w: poll interval %v out of range [%v, %v]", ErrInvalidArgument, d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d
		return nil
	})
}

// WithAddress sets the address used before Initialize, for devices that were
// configured in an earlier session.
func WithAddress(addr Address) Option {
	return optFunc(func(cfg *config) error {
		if !addr.Valid() {
			return fmt.Errorf("%w: address %q must be 1-9 or A-E", ErrInvalidArgument, addr.String())
		}
		cfg.address = addr
		return nil
	})
}

// WithAnswerMode sets the answer mode assumed before Initialize.
func WithAnswerMode(mode AnswerMode) Option {
	return optFunc(func(cfg *config) error {
		if !mode.Valid() {
			return fmt.Errorf("%w: answer mode %d", ErrInvalidArgument, int(mode))
		}
		cfg.mode = mode
		return nil
	})
}

// WithPortCount sets the valve port count assumed before Initialize.
func WithPortCount(n int) Option {
	return optFunc(func(cfg *config) error {
		if !ValidPortCount(n) {
			return fmt.Errorf("%w: port count %d must be one of %v", ErrInvalidArgument, n, ValidPortCounts)
		}
		cfg.portCount = n
		return nil
	})
}

// WithPump marks the device as a dual valve and syringe pump.
func WithPump(pump bool) Option {
	return optFunc(func(cfg *config) error {
		cfg.pump = pump
		return nil
	})
}

// WithOpener replaces the serial port opener.
func WithOpener(opener PortOpener) Option {
	return optFunc(func(cfg *config) error {
		if opener == nil {
			return fmt.Errorf("%w: nil port opener", ErrInvalidArgument)
		}
		cfg.opener = opener
		return nil
	})
}

// WithLogger sets the logger. Default is logger.GetLogger().
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l != nil {
			cfg.logger = l
		}
		return nil
	})
}

// WithTracer installs a tracer that observes every frame on the link.
func WithTracer(t Tracer) Option {
	return optFunc(func(cfg *config) error {
		cfg.tracer = t
		return nil
	})
}

// WithMetrics makes the transport count into m, so several sessions can share
// one set of counters.
func WithMetrics(m *Metrics) Option {
	return optFunc(func(cfg *config) error {
		if m == nil {
			return fmt.Errorf("%w: nil metrics", ErrInvalidArgument)
		}
		cfg.metrics = m
		return nil
	})
}

// ValidPortCount reports whether n is a supported valve configuration.
func ValidPortCount(n int) bool {
	return slices.Contains(ValidPortCounts[:], n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
