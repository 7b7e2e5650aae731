// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/valvestat/pkg/amf"
	"github.com/Thermoquad/valvestat/pkg/capture"
)

var (
	dumpStats     bool
	dumpStatsOnly bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Inspect link captures recorded with --capture",
}

var captureDumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print a capture in human-readable format",
	Long: `Decode and print every frame of a capture file with its timestamp,
port and direction. Answers are decoded in the answer mode given by --mode.

With --stats a summary of commands, answers, timeouts and device errors is
printed at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runCaptureDump,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.AddCommand(captureDumpCmd)

	captureDumpCmd.Flags().BoolVarP(&dumpStats, "stats", "s", false, "Print statistics after the records")
	captureDumpCmd.Flags().BoolVar(&dumpStatsOnly, "stats-only", false, "Print statistics without the records")
}

func runCaptureDump(cmd *cobra.Command, args []string) error {
	mode := amf.AnswerMode(answerMode)
	if !mode.Valid() {
		return fmt.Errorf("%w: answer mode %d", amf.ErrInvalidArgument, answerMode)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	stats := capture.NewStatistics()
	reader := capture.NewReader(f)

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", stats.Records+1, err)
		}

		stats.Update(rec, mode)
		if !dumpStatsOnly {
			fmt.Fprintln(out, capture.FormatRecord(rec, mode))
		}
	}

	if dumpStats || dumpStatsOnly {
		fmt.Fprintln(out)
		fmt.Fprint(out, stats.String())
	}
	return nil
}
