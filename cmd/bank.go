// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/valvestat/pkg/amf"
	"github.com/Thermoquad/valvestat/pkg/bank"
	"github.com/Thermoquad/valvestat/pkg/logger"
)

var (
	bankConfigPath string
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Drive a set of labelled valves from a YAML configuration",
	Long: `Drive several valves, each on its own serial port, by label.

The configuration maps labels to ports:

  valves:
    A: {port: /dev/ttyUSB0, ports: 6}
    B: {port: /dev/ttyUSB1, ports: 12, address: "2"}

The --port, --url, --address and --ports flags are ignored; every valve comes
from the configuration.`,
}

var bankHomeCmd = &cobra.Command{
	Use:   "home [LABEL]",
	Short: "Home one valve, or every valve not yet homed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBank(func(ctx context.Context, b *bank.Bank) error {
			if len(args) == 1 {
				return b.Home(ctx, args[0])
			}
			return b.HomeAll(ctx)
		})
	},
}

var bankSetCmd = &cobra.Command{
	Use:   "set LABEL PORT",
	Short: "Switch a labelled valve to a port",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[1], err)
		}
		return withBank(func(ctx context.Context, b *bank.Bank) error {
			if err := b.SetPort(ctx, args[0], port); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %d\n", okStyle.Render("Valve"), args[0], port)
			return nil
		})
	},
}

var bankPositionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Print the port of every valve",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBank(func(ctx context.Context, b *bank.Bank) error {
			positions, err := b.Positions()
			out := cmd.OutOrStdout()
			for _, label := range b.Labels() {
				if pos, ok := positions[label]; ok {
					printField(out, label, pos)
				}
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(bankCmd)
	bankCmd.AddCommand(bankHomeCmd, bankSetCmd, bankPositionsCmd)

	bankCmd.PersistentFlags().StringVarP(&bankConfigPath, "config", "c", "valves.yaml", "Bank configuration file")
}

// bankOptions are the session options shared by every valve in the bank.
func bankOptions() []amf.Option {
	opts := []amf.Option{
		amf.WithOpener(serialOpener),
		amf.WithReadTimeout(readTimeout),
		amf.WithMetrics(sessionMetrics),
	}
	if recorder != nil {
		opts = append(opts, amf.WithTracer(recorder))
	}
	return opts
}

func withBank(fn func(ctx context.Context, b *bank.Bank) error) error {
	cfg, err := bank.LoadConfig(bankConfigPath)
	if err != nil {
		return err
	}

	b, err := bank.Open(cfg, logger.GetLogger(), bankOptions()...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = fn(ctx, b)
	return errors.Join(err, b.Close())
}
