// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bank

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

// ValveConfig describes one labelled valve.
type ValveConfig struct {
	// Port is the serial device, e.g. /dev/ttyUSB0 or COM3.
	Port string `yaml:"port"`
	// Address is the device address, "1" when empty.
	Address string `yaml:"address,omitempty"`
	// Ports is the valve port count.
	Ports int  `yaml:"ports"`
	Pump  bool `yaml:"pump,omitempty"`
	// Baud is the serial baud rate, 9600 when zero.
	Baud int `yaml:"baud,omitempty"`
}

// Config maps valve labels to their hardware.
//
//	valves:
//	  A: {port: /dev/ttyUSB0, ports: 6}
//	  B: {port: /dev/ttyUSB1, ports: 12, address: "2"}
type Config struct {
	Valves map[string]ValveConfig `yaml:"valves"`
}

// LoadConfig reads and validates a YAML bank configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bank config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates a YAML bank configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse bank config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every valve entry. A physical port may back one label only.
func (c *Config) Validate() error {
	if len(c.Valves) == 0 {
		return errors.New("bank config has no valves")
	}

	owners := make(map[string]string)
	var errs []error
	for _, label := range c.Labels() {
		v := c.Valves[label]
		if v.Port == "" {
			errs = append(errs, fmt.Errorf("valve %s: missing port", label))
		} else if other, ok := owners[v.Port]; ok {
			errs = append(errs, fmt.Errorf("valve %s: port %s already used by valve %s", label, v.Port, other))
		} else {
			owners[v.Port] = label
		}
		if _, err := v.address(); err != nil {
			errs = append(errs, fmt.Errorf("valve %s: %w", label, err))
		}
		if !amf.ValidPortCount(v.Ports) {
			errs = append(errs, fmt.Errorf("valve %s: port count %d must be one of %v", label, v.Ports, amf.ValidPortCounts))
		}
		if v.Baud < 0 {
			errs = append(errs, fmt.Errorf("valve %s: invalid baud rate %d", label, v.Baud))
		}
	}

	return errors.Join(errs...)
}

// Labels returns the valve labels, sorted.
func (c *Config) Labels() []string {
	labels := make([]string, 0, len(c.Valves))
	for label := range c.Valves {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func (v ValveConfig) address() (amf.Address, error) {
	if v.Address == "" {
		return amf.DefaultAddress, nil
	}
	addr, err := amf.ParseAddress(v.Address)
	if err != nil {
		return 0, err
	}
	if addr.IsBroadcast() {
		return 0, fmt.Errorf("%w: broadcast address is not a valve", amf.ErrInvalidArgument)
	}
	return addr, nil
}

func (v ValveConfig) options() []amf.Option {
	addr, _ := v.address()
	opts := []amf.Option{
		amf.WithAddress(addr),
		amf.WithPortCount(v.Ports),
		amf.WithPump(v.Pump),
	}
	if v.Baud > 0 {
		opts = append(opts, amf.WithBaudRate(v.Baud))
	}
	return opts
}
