// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a thin wrapper around the stdlib structured logger
type Logger struct {
	*slog.Logger
}

// New returns a new Logger that writes text records to stderr
func New(level slog.Level) *Logger {
	return NewLogger(level)
}

// NewLogger returns a new Logger for the given level. If no output writers are provided,
// the logger will write to stderr. Multiple writers are combined into a single output.
func NewLogger(level slog.Level, output ...io.Writer) *Logger {
	var out io.Writer = os.Stderr
	switch len(output) {
	case 0:
	case 1:
		out = output[0]
	default:
		out = io.MultiWriter(output...)
	}
	return &Logger{slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))}
}

// With returns a Logger that includes the given attributes in each record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// Err returns a slog.Attr for the given error
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
