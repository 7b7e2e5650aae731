// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logger

import (
	"os"
	"sync/atomic"
)

var defLogger atomic.Pointer[Logger]

func init() {
	SetLogger(New(os.Stderr, InfoLevel, JSONFormat))
}

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	return *defLogger.Load()
}

// SetLogger replaces the process-wide default logger.
func SetLogger(l Logger) {
	defLogger.Store(&l)
}

func Debug(msg string, keysAndValues ...any) { GetLogger().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)  { GetLogger().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)  { GetLogger().Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...any) { GetLogger().Error(msg, keysAndValues...) }

// Discard returns a logger that drops every record.
func Discard() Logger {
	return New(discardWriter{}, ErrorLevel+1, JSONFormat)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
