// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

var (
	statusShowMetrics bool
	statusWait        bool
)

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Print the valve port (and plunger position with --pump)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(func(ctx context.Context, dev *amf.Device) error {
			out := cmd.OutOrStdout()

			port, err := dev.ValvePosition()
			if err != nil {
				return err
			}
			printField(out, "Valve port", port)

			if dev.HasPump() {
				plunger, err := dev.PlungerPosition()
				if err != nil {
					return err
				}
				printField(out, "Plunger", plunger)
			}
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the device status details without waiting",
	Long: `Query the status details of the valve (and the pump with --pump) once.

With --wait the command polls until every channel reports done, the way a
move is awaited. Ctrl+C stops the wait between polls.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device identification and configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(func(ctx context.Context, dev *amf.Device) error {
			info, err := dev.Info()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTitle(out, "Device Info")
			printField(out, "Port", dev.Port())
			printField(out, "Firmware", info.FirmwareVersion)
			printField(out, "UID", info.UID)
			printField(out, "Address", info.Address)
			printField(out, "Answer mode", info.AnswerMode)
			printField(out, "Valve ports", info.PortCount)
			printField(out, "Supply (0.1 V)", info.SupplyVoltage)
			printField(out, "Valve moves", info.ValveMoves)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(positionCmd, statusCmd, infoCmd)

	statusCmd.Flags().BoolVar(&statusShowMetrics, "metrics", false, "Print link counters after the query")
	statusCmd.Flags().BoolVarP(&statusWait, "wait", "w", false, "Poll until the device is ready")
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withDevice(func(ctx context.Context, dev *amf.Device) error {
		out := cmd.OutOrStdout()

		if statusWait {
			if err := dev.WaitReady(ctx); err != nil {
				printFault(out, err)
				return err
			}
		}

		printTitle(out, "Status")
		printField(out, "Address", dev.Address())
		printField(out, "Answer mode", dev.AnswerMode())

		channels := []amf.Channel{amf.ValveChannel}
		if dev.HasPump() {
			channels = append(channels, amf.PumpChannel)
		}

		var firstErr error
		for _, ch := range channels {
			state, data, err := dev.Status(ch)
			printField(out, ch.String(), fmt.Sprintf("%s  %s", renderState(state), amf.FormatStatus(data)))
			if err != nil {
				printFault(out, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		homed, err := dev.IsHomed()
		if err == nil {
			printField(out, "Homed", homed)
		}
		if counter := dev.Counter(); counter != "" {
			printField(out, "Move counter", counter)
		}

		if statusShowMetrics {
			printMetrics(out, dev.Metrics().Snapshot())
		}
		return firstErr
	})
}

func printMetrics(w io.Writer, m amf.Snapshot) {
	fmt.Fprintln(w)
	printTitle(w, "Link Counters")
	printField(w, "Transactions", m.Transactions)
	printField(w, "Broadcasts", m.Broadcasts)
	printField(w, "Bytes sent", m.BytesSent)
	printField(w, "Bytes received", m.BytesRecv)
	printField(w, "Status polls", m.Polls)
	printField(w, "Faults", m.Faults)
	printField(w, "Timeouts", m.Timeouts)
	printField(w, "Malformed", m.Malformed)
}
