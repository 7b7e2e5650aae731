// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	console "github.com/phsym/console-slog"
)

// SlogLogger is a Logger backed by log/slog.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var _ Logger = (*SlogLogger)(nil)

// New creates a logger writing to w. ENV=development forces the console format.
func New(w io.Writer, level Level, format Format) *SlogLogger {
	lv := &slog.LevelVar{}
	lv.Set(toSlogLevel(level))

	if os.Getenv("ENV") == "development" {
		format = ConsoleFormat
	}

	var handler slog.Handler
	switch format {
	case ConsoleFormat:
		handler = console.NewHandler(w, &console.HandlerOptions{
			Level:      lv,
			TimeFormat: "15:04:05.000",
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lv,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	}

	return &SlogLogger{logger: slog.New(handler), level: lv}
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(slog.LevelWarn, msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues...)
}

// With returns a child logger sharing this logger's level.
func (l *SlogLogger) With(keyValues ...any) Logger {
	return &SlogLogger{logger: l.logger.With(keyValues...), level: l.level}
}

func (l *SlogLogger) Level() Level {
	switch l.level.Level() {
	case slog.LevelDebug:
		return DebugLevel
	case slog.LevelInfo:
		return InfoLevel
	case slog.LevelWarn:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

// log must be called directly by an exported method; the fixed call depth
// attributes the record to the caller of that method.
func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
