// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

// FormatRecord formats a record into a human-readable line
func FormatRecord(rec *Record, mode amf.AnswerMode) string {
	timestamp := rec.Time().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s %-3s %s", timestamp, rec.Port, rec.Kind, amf.FormatFrame(rec.Frame))

	switch rec.Kind {
	case amf.TraceSent:
		if addr, body, err := amf.ParseFrame(rec.Frame); err == nil {
			result += fmt.Sprintf("  addr=%s %s", addr, describeCommand(body))
		}
	case amf.TraceReceived:
		if resp, err := amf.DecodeResponse(rec.Frame, mode); err == nil {
			result += "  " + amf.FormatResponse(resp)
		} else {
			result += fmt.Sprintf("  (%v)", err)
		}
	}

	return result
}

// describeCommand names the longest known verb that prefixes body.
func describeCommand(body string) string {
	for n := len(body); n > 0; n-- {
		if name := amf.FormatVerb(body[:n]); name != "UNKNOWN" {
			if n == len(body) {
				return name
			}
			return fmt.Sprintf("%s(%s)", name, body[n:])
		}
	}
	return "UNKNOWN"
}
