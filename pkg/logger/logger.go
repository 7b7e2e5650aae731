// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logger provides the structured logger used by valvestat packages.
//
// Messages carry key/value pairs. The default logger writes JSON lines to
// stderr; the console format renders the same records for humans.
package logger

import (
	"fmt"
	"strings"
)

// Level is the logging severity.
type Level int8

// Log levels
const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// ParseLevel parses debug, info, warn or error (any case).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Format selects the output rendering.
type Format int

// Output formats
const (
	JSONFormat Format = iota
	ConsoleFormat
)

// ParseFormat parses json or console.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return JSONFormat, nil
	case "console", "text":
		return ConsoleFormat, nil
	}
	return JSONFormat, fmt.Errorf("unknown log format %q", s)
}

// Logger is the logging interface accepted throughout valvestat.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// With returns a child logger that adds keyValues to every record.
	With(keyValues ...any) Logger
	Level() Level
	SetLevel(level Level)
}
