// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

var (
	initMode  int
	initPorts int

	switchDir   string
	switchForce bool

	moveMode  string
	moveSpeed int
	moveAccel int
	moveDecel int
	moveForce int

	stopHard bool
)

var initCmd = &cobra.Command{
	Use:   "init NEW_ADDRESS",
	Short: "Configure address, answer mode and port count, then home",
	Long: `Assign a device its address, answer mode and valve configuration, then home it.

The address command is sent to the address given by --address (factory default
1). Every later command uses NEW_ADDRESS.`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Home the valve (and the pump with --pump)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(func(ctx context.Context, dev *amf.Device) error {
			if err := dev.Home(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Homed"))
			return nil
		})
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch PORT",
	Short: "Switch the valve to a port and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitch,
}

var moveCmd = &cobra.Command{
	Use:   "move STEPS",
	Short: "Move the plunger and wait for it",
	Long: `Move the plunger of a syringe pump and wait for it.

Movement modes:
  ABS - absolute position
  PIC - relative pickup
  DIS - relative dispense

Speed, acceleration, deceleration and force are applied before the move when
given.`,
	Args: cobra.ExactArgs(1),
	RunE: runMove,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Halt the running sequence (--hard aborts the move)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(func(ctx context.Context, dev *amf.Device) error {
			if stopHard {
				return dev.HardStop()
			}
			return dev.Halt()
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd, homeCmd, switchCmd, moveCmd, stopCmd)

	initCmd.Flags().IntVar(&initMode, "set-mode", int(amf.Synchronous), "Answer mode to assign (0, 1, 2)")
	initCmd.Flags().IntVar(&initPorts, "set-ports", 6, "Valve port count to assign (4, 6, 8, 10, 12)")

	switchCmd.Flags().StringVarP(&switchDir, "dir", "d", "ANY", "Rotation direction (ANY, CW, CCW)")
	switchCmd.Flags().BoolVarP(&switchForce, "force", "f", false, "Move even if already at the port")

	moveCmd.Flags().StringVar(&moveMode, "movement", "ABS", "Movement mode (ABS, PIC, DIS)")
	moveCmd.Flags().IntVar(&moveSpeed, "speed", 0, "Peak speed in pulses/s (0 keeps the current setting)")
	moveCmd.Flags().IntVar(&moveAccel, "accel", 0, "Acceleration in pulses/s^2 (0 keeps the current setting)")
	moveCmd.Flags().IntVar(&moveDecel, "decel", 0, "Deceleration in pulses/s^2 (0 keeps the current setting)")
	moveCmd.Flags().IntVar(&moveForce, "force-level", -1, "Plunger force 0 (high) to 3 (low)")

	stopCmd.Flags().BoolVar(&stopHard, "hard", false, "Hard stop instead of halt")
}

func runInit(cmd *cobra.Command, args []string) error {
	addr, err := amf.ParseAddress(args[0])
	if err != nil {
		return err
	}

	return withDevice(func(ctx context.Context, dev *amf.Device) error {
		if err := dev.Initialize(ctx, addr, amf.AnswerMode(initMode), initPorts); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printTitle(out, "Initialized")
		printField(out, "Address", dev.Address())
		printField(out, "Answer mode", dev.AnswerMode())
		printField(out, "Ports", dev.PortCount())
		return nil
	})
}

func runSwitch(cmd *cobra.Command, args []string) error {
	position, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	dir, err := amf.ParseDirection(switchDir)
	if err != nil {
		return err
	}

	return withDevice(func(ctx context.Context, dev *amf.Device) error {
		if err := dev.SwitchValve(ctx, position, dir, switchForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", okStyle.Render("Valve at port"), position)
		return nil
	})
}

func runMove(cmd *cobra.Command, args []string) error {
	steps, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid steps %q: %w", args[0], err)
	}
	mode, err := amf.ParsePlungerMode(moveMode)
	if err != nil {
		return err
	}

	return withDevice(func(ctx context.Context, dev *amf.Device) error {
		if moveForce >= 0 {
			if err := dev.SetPlungerForce(moveForce); err != nil {
				return err
			}
		}
		if moveSpeed > 0 {
			if err := dev.SetSpeed(moveSpeed); err != nil {
				return err
			}
		}
		if moveAccel > 0 {
			if err := dev.SetAcceleration(moveAccel); err != nil {
				return err
			}
		}
		if moveDecel > 0 {
			if err := dev.SetDeceleration(moveDecel); err != nil {
				return err
			}
		}

		if err := dev.MovePlunger(ctx, steps, mode); err != nil {
			return err
		}

		position, err := dev.PlungerPosition()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", okStyle.Render("Plunger at"), position)
		return nil
	})
}
