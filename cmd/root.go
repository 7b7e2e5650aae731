// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/valvestat/pkg/amf"
	"github.com/Thermoquad/valvestat/pkg/capture"
	"github.com/Thermoquad/valvestat/pkg/logger"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Session flags
	addressFlag string
	answerMode  int
	portCount   int
	hasPump     bool
	readTimeout time.Duration

	// Output flags
	logLevel    string
	logFormat   string
	capturePath string
)

var (
	// recorder is set when --capture is given and closed by Execute.
	recorder *capture.Recorder

	// sessionMetrics collects counters across every device the command opens.
	sessionMetrics = &amf.Metrics{}
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

var rootCmd = &cobra.Command{
	Use:   "valvestat",
	Short: "AMF valve and syringe pump controller",
	Long: `Valvestat - A CLI tool for driving AMF rotary valves and syringe pumps
(RVM, SPM, LSPOne) over their ASCII serial protocol.

Provides commands for configuring and homing devices, switching valve ports,
moving the plunger, reading positions and status, sending raw commands and
recording link captures for later analysis.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the VALVESTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupOutput()
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", amf.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Session flags
	rootCmd.PersistentFlags().StringVarP(&addressFlag, "address", "a", amf.DefaultAddress.String(), "Device address (1-9, A-E)")
	rootCmd.PersistentFlags().IntVarP(&answerMode, "mode", "m", int(amf.Synchronous), "Answer mode (0 sync, 1 async, 2 async with counter)")
	rootCmd.PersistentFlags().IntVar(&portCount, "ports", 6, "Valve port count (4, 6, 8, 10, 12)")
	rootCmd.PersistentFlags().BoolVar(&hasPump, "pump", false, "Device has a syringe pump")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "read-timeout", amf.DefaultReadTimeout, "Answer read timeout")

	// Output flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Record every frame to a capture file")
}

// setupOutput installs the logger and opens the capture file.
func setupOutput() error {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return err
	}
	logger.SetLogger(logger.New(os.Stderr, level, format))

	if capturePath != "" && recorder == nil {
		recorder, err = capture.Create(capturePath)
		if err != nil {
			return fmt.Errorf("failed to create capture: %w", err)
		}
		logger.Info("recording capture", "path", capturePath)
	}
	return nil
}

// closeCapture flushes the capture file, if any.
func closeCapture() error {
	if recorder == nil {
		return nil
	}
	r := recorder
	recorder = nil
	logger.Info("capture closed", "path", capturePath, "records", r.Count())
	return r.Close()
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	return errors.Join(err, closeCapture())
}
