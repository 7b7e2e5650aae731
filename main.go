// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Valvestat - AMF valve and syringe pump controller
//
// A CLI tool for driving AMF rotary valves and syringe pumps over their
// ASCII serial protocol.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Thermoquad/valvestat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
