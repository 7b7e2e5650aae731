// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/valvestat/pkg/amf"
)

// Statistics summarizes the traffic in a capture
type Statistics struct {
	FirstTime time.Time
	LastTime  time.Time

	// Counters
	Records   uint64
	Commands  uint64
	Answers   uint64
	Clears    uint64
	Timeouts  uint64
	Malformed uint64
	Unknown   uint64
	Faults    uint64

	// FaultCodes counts answers per non-zero error code.
	FaultCodes map[int]uint64
}

// NewStatistics creates an empty statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{FaultCodes: make(map[int]uint64)}
}

// Update accounts for one record
func (s *Statistics) Update(rec *Record, mode amf.AnswerMode) {
	s.Records++
	t := rec.Time()
	if s.FirstTime.IsZero() || t.Before(s.FirstTime) {
		s.FirstTime = t
	}
	if t.After(s.LastTime) {
		s.LastTime = t
	}

	switch rec.Kind {
	case amf.TraceSent:
		s.Commands++
	case amf.TraceCleared:
		s.Clears++
	case amf.TraceTimedOut:
		s.Timeouts++
	case amf.TraceReceived:
		s.Answers++
		resp, err := amf.DecodeResponse(rec.Frame, mode)
		if err != nil {
			s.Malformed++
			return
		}
		code, err := resp.ErrorCode()
		switch {
		case errors.Is(err, amf.ErrUnknownCode):
			s.Unknown++
		case err == nil && !code.OK():
			s.Faults++
			s.FaultCodes[code.Code]++
		}
	}
}

// Duration returns the time between the first and last record
func (s *Statistics) Duration() time.Duration {
	if s.FirstTime.IsZero() {
		return 0
	}
	return s.LastTime.Sub(s.FirstTime)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "=== Capture (%s) ===\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "Records:         %8d\n", s.Records)
	fmt.Fprintf(&sb, "Commands:        %8d\n", s.Commands)
	fmt.Fprintf(&sb, "Answers:         %8d\n", s.Answers)
	fmt.Fprintf(&sb, "Input Clears:    %8d\n", s.Clears)

	if s.Timeouts > 0 {
		fmt.Fprintf(&sb, "Timeouts:        %8d\n", s.Timeouts)
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&sb, "Malformed:       %8d\n", s.Malformed)
	}
	if s.Unknown > 0 {
		fmt.Fprintf(&sb, "Unknown Codes:   %8d\n", s.Unknown)
	}
	if s.Faults > 0 {
		fmt.Fprintf(&sb, "Device Errors:   %8d\n", s.Faults)

		codes := make([]int, 0, len(s.FaultCodes))
		for code := range s.FaultCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&sb, "  %-24s %5d\n", describeErrorCode(code), s.FaultCodes[code])
		}
	}

	sb.WriteString("================================\n")

	return sb.String()
}

func describeErrorCode(code int) string {
	for _, ec := range amf.ErrorCodes {
		if ec.Code == code {
			return fmt.Sprintf("%d %s", code, ec.Description)
		}
	}
	return fmt.Sprintf("%d", code)
}
