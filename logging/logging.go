// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright 2025 Pete Heist

// Package logging is a thin wrapper of the zap logging library.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var root = func() *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		os.Stderr,
		level(),
	)
	return zap.New(core)
}()

// level reads the log level from the DUALPI2_LOG environment variable,
// defaulting to info.
func level() zapcore.Level {
	switch strings.ToLower(os.Getenv("DUALPI2_LOG")) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Named creates a named logger.
//
// By convention, each package declares its logger once at package level:
//
//	var logger = logging.New("dualpi2")
func Named(pkg string) *zap.Logger {
	return root.Named(pkg)
}

// New creates a logger for the given package name.
func New(pkg string) *zap.Logger {
	return Named(pkg)
}
