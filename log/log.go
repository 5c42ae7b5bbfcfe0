// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log carries a Logger through context.Context so that the timestamp
// lifecycle, the git backends and the TSA client can report progress without
// depending on a concrete logging library.
//
// Callers enable logging by attaching a Logger with WithLogger. Code that
// logs calls GetLogger, which falls back to Discard.
package log

import "context"

type contextKey int

// loggerKey is the associated key type for logger entry in context.
const loggerKey contextKey = iota

// Discard is a Logger that drops every message.
var Discard Logger = &discardLogger{}

// Logger is the printf-style logging surface used across git-timestamp.
// *slog.Logger values are adapted with NewSlogLogger.
type Logger interface {
	// Debug logs a debug level message.
	Debug(args ...any)

	// Debugf logs a debug level message with format.
	Debugf(format string, args ...any)

	// Info logs an info level message.
	Info(args ...any)

	// Infof logs an info level message with format.
	Infof(format string, args ...any)

	// Warn logs a warn level message.
	Warn(args ...any)

	// Warnf logs a warn level message with format.
	Warnf(format string, args ...any)

	// Error logs an error level message.
	Error(args ...any)

	// Errorf logs an error level message with format.
	Errorf(format string, args ...any)
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger returns the Logger carried by ctx, or Discard.
func GetLogger(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return Discard
}

type discardLogger struct{}

func (dl *discardLogger) Debug(args ...any) {
}

func (dl *discardLogger) Debugf(format string, args ...any) {
}

func (dl *discardLogger) Info(args ...any) {
}

func (dl *discardLogger) Infof(format string, args ...any) {
}

func (dl *discardLogger) Warn(args ...any) {
}

func (dl *discardLogger) Warnf(format string, args ...any) {
}

func (dl *discardLogger) Error(args ...any) {
}

func (dl *discardLogger) Errorf(format string, args ...any) {
}
