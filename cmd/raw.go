// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

var (
	rawWait bool
)

var sendCmd = &cobra.Command{
	Use:   "send VERB [OPERAND]",
	Short: "Send one raw command and print the decoded answer",
	Long: `Send a single command and print the frame sent and the answer received.

VERB is either a raw verb ("?6", "Z", "B") or a command name from "valvestat
verbs" (GET_VALVE_POSITION, HOME, SWITCH_SHORTEST). The execute suffix is added
when the verb needs one.

With --wait the valve status is polled until the command completes.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast VERB [OPERAND]",
	Short: "Send a command to every device on the bus",
	Long: `Send a command to the broadcast address. Devices do not answer broadcasts.

With --wait the device at --address is polled until it reports done.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBroadcast,
}

var verbsCmd = &cobra.Command{
	Use:   "verbs",
	Short: "List known command names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range amf.VerbNames() {
			fmt.Fprintf(out, "%-32s %s\n", name, amf.LookupVerb(name))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd, broadcastCmd, verbsCmd)

	sendCmd.Flags().BoolVarP(&rawWait, "wait", "w", false, "Poll status until the command completes")
	broadcastCmd.Flags().BoolVarP(&rawWait, "wait", "w", false, "Poll the addressed device until it is ready")
}

// parseRawCommand builds a command from a verb name or raw verb and an
// optional operand.
func parseRawCommand(args []string) amf.Command {
	verb := amf.LookupVerb(args[0])
	if len(args) > 1 {
		return amf.CmdString(verb, args[1])
	}
	// A raw frame body ending in R already carries its suffix
	if cmd := amf.Cmd(verb); cmd.NeedsExecute() && len(verb) > 1 && strings.HasSuffix(verb, string(rune(amf.Execute))) {
		return amf.Cmd(strings.TrimSuffix(verb, string(rune(amf.Execute))))
	}
	return amf.Cmd(verb)
}

func runSend(cmd *cobra.Command, args []string) error {
	command := parseRawCommand(args)

	return withDevice(func(ctx context.Context, dev *amf.Device) error {
		out := cmd.OutOrStdout()

		frame, err := amf.EncodeCommand(dev.Address(), command)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "TX  %s  %s\n", amf.FormatFrame(frame), amf.FormatVerb(command.Verb))

		resp, err := dev.Send(command)
		if resp != nil {
			fmt.Fprintf(out, "RX  %s  %s\n", amf.FormatFrame(resp.Raw), amf.FormatResponse(resp))
		}
		if err != nil {
			printFault(out, err)
			return err
		}

		if rawWait {
			if err := dev.WaitReady(ctx); err != nil {
				printFault(out, err)
				return err
			}
			fmt.Fprintln(out, okStyle.Render("Done"))
		}
		return nil
	})
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	command := parseRawCommand(args)

	return withDevice(func(ctx context.Context, dev *amf.Device) error {
		out := cmd.OutOrStdout()

		frame, err := amf.EncodeCommand(amf.AddressBroadcast, command)
		if err != nil {
			return err
		}
		if err := dev.Broadcast(command); err != nil {
			return err
		}
		fmt.Fprintf(out, "TX  %s  %s\n", amf.FormatFrame(frame), amf.FormatVerb(command.Verb))

		if rawWait {
			if err := dev.WaitReady(ctx); err != nil {
				printFault(out, err)
				return err
			}
			fmt.Fprintln(out, okStyle.Render("Done"))
		}
		return nil
	})
}
