// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

var (
	pingCount int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test connection by querying the firmware version",
	Long: `Query the firmware version of the device at --address and report the
round-trip time of each answer.

Any answer counts, including an error answer: the device is on the bus.

Exit codes:
  0 - Every query was answered
  1 - At least one query timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 1, "Number of queries to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("%w: count %d", amf.ErrInvalidArgument, pingCount)
	}

	dev, connInfo, err := OpenDevice()
	if err != nil {
		return &ExitError{Code: 2, Err: fmt.Errorf("connection error: %w", err)}
	}
	defer dev.Disconnect()

	out := cmd.OutOrStdout()
	printTitle(out, "Ping")
	printField(out, "Connection", connInfo)
	printField(out, "Address", dev.Address())
	printField(out, "Timeout", readTimeout)
	fmt.Fprintln(out)

	lost := 0
	for i := 1; i <= pingCount; i++ {
		start := time.Now()
		resp, err := dev.Send(amf.Cmd(amf.VerbGetFirmwareVersion))
		rtt := time.Since(start)

		switch {
		case errors.Is(err, amf.ErrTimeout):
			lost++
			fmt.Fprintf(out, "%d: %s\n", i, faultStyle.Render("TIMEOUT"))
		case errors.Is(err, amf.ErrNotConnected):
			return &ExitError{Code: 2, Err: err}
		case resp != nil:
			fmt.Fprintf(out, "%d: %s firmware=%q time=%s\n", i, okStyle.Render("answer"), resp.Data, rtt.Round(time.Millisecond))
			if err != nil {
				printFault(out, err)
			}
		default:
			return &ExitError{Code: 2, Err: fmt.Errorf("read error: %w", err)}
		}
	}

	fmt.Fprintf(out, "\n%d sent, %d answered, %d lost\n", pingCount, pingCount-lost, lost)
	if lost > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d queries timed out", lost, pingCount)}
	}
	return nil
}
