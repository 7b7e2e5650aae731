// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(18)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	faultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)
)

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render("Valvestat - "+title))
}

func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(fmt.Sprint(value)))
}

// renderState colours a poll state for display.
func renderState(state amf.PollState) string {
	switch state {
	case amf.PollDone:
		return okStyle.Render(state.String())
	case amf.PollBusy:
		return busyStyle.Render(state.String())
	default:
		return faultStyle.Render(state.String())
	}
}

// printFault prints a device fault with its code, or the bare error.
func printFault(w io.Writer, err error) {
	var fault *amf.DeviceFault
	if errors.As(err, &fault) {
		fmt.Fprintln(w, faultStyle.Render(fmt.Sprintf("%s %d: %s", fault.Kind, fault.Code, fault.Description)))
		return
	}
	fmt.Fprintln(w, faultStyle.Render(err.Error()))
}
