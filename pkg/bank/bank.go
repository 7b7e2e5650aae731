// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bank drives a set of labelled valves, each on its own serial port.
package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thermoquad/valvestat/pkg/amf"
	"github.com/Thermoquad/valvestat/pkg/logger"
)

// ErrUnknownValve indicates a label missing from the bank configuration.
var ErrUnknownValve = errors.New("unknown valve")

// Bank owns one connected Device per configured label.
type Bank struct {
	labels  []string
	devices map[string]*amf.Device
	log     logger.Logger
}

// Open connects every valve in cfg. opts apply to every device, before the
// per-valve settings. If any valve fails to connect, the ones already opened
// are disconnected.
func Open(cfg *Config, log logger.Logger, opts ...amf.Option) (*Bank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger()
	}

	b := &Bank{
		labels:  cfg.Labels(),
		devices: make(map[string]*amf.Device, len(cfg.Valves)),
		log:     log.With("component", "bank"),
	}

	for _, label := range b.labels {
		vc := cfg.Valves[label]
		devOpts := append(append([]amf.Option{}, opts...), vc.options()...)
		devOpts = append(devOpts, amf.WithLogger(log.With("valve", label)))

		dev, err := amf.NewDevice(vc.Port, devOpts...)
		if err == nil {
			err = dev.Connect()
		}
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("valve %s: %w", label, err)
		}
		b.devices[label] = dev
	}

	b.log.Info("all valves connected", "count", len(b.devices))

	return b, nil
}

// Labels returns the valve labels, sorted.
func (b *Bank) Labels() []string {
	return append([]string(nil), b.labels...)
}

// Device returns the device behind label.
func (b *Bank) Device(label string) (*amf.Device, error) {
	dev, ok := b.devices[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownValve, label)
	}
	return dev, nil
}

// Home homes one valve unless it reports being homed already.
func (b *Bank) Home(ctx context.Context, label string) error {
	dev, err := b.Device(label)
	if err != nil {
		return err
	}

	homed, err := dev.IsHomed()
	if err != nil {
		return fmt.Errorf("valve %s: %w", label, err)
	}
	if homed {
		b.log.Info("valve already home", "valve", label)
		return nil
	}

	b.log.Info("homing valve", "valve", label)
	if err := dev.Home(ctx); err != nil {
		return fmt.Errorf("valve %s: %w", label, err)
	}
	return nil
}

// HomeAll homes every valve in label order, stopping at the first failure.
func (b *Bank) HomeAll(ctx context.Context) error {
	for _, label := range b.labels {
		if err := b.Home(ctx, label); err != nil {
			return err
		}
	}
	b.log.Info("all valves homed")
	return nil
}

// SetPort turns the labelled valve to port by the shortest path.
func (b *Bank) SetPort(ctx context.Context, label string, port int) error {
	dev, err := b.Device(label)
	if err != nil {
		return err
	}

	b.log.Info("moving valve", "valve", label, "port", port)
	if err := dev.SwitchValve(ctx, port, amf.DirectionAny, false); err != nil {
		return fmt.Errorf("valve %s: %w", label, err)
	}
	return nil
}

// Position reads the current port of the labelled valve.
func (b *Bank) Position(label string) (int, error) {
	dev, err := b.Device(label)
	if err != nil {
		return 0, err
	}
	pos, err := dev.ValvePosition()
	if err != nil {
		return 0, fmt.Errorf("valve %s: %w", label, err)
	}
	return pos, nil
}

// Positions reads the current port of every valve.
func (b *Bank) Positions() (map[string]int, error) {
	out := make(map[string]int, len(b.labels))
	for _, label := range b.labels {
		pos, err := b.Position(label)
		if err != nil {
			return out, err
		}
		out[label] = pos
	}
	return out, nil
}

// Close disconnects every valve and returns all disconnect errors.
func (b *Bank) Close() error {
	var errs []error
	for _, label := range b.labels {
		dev, ok := b.devices[label]
		if !ok {
			continue
		}
		if err := dev.Disconnect(); err != nil && !errors.Is(err, amf.ErrNotConnected) {
			errs = append(errs, fmt.Errorf("valve %s: %w", label, err))
		}
		delete(b.devices, label)
	}
	return errors.Join(errs...)
}
