// Copyright 2021 The VPN House Authors. All rights reserved.
// Use of this source code is governed by a AGPL-style
// license that can be found in the LICENSE file.

package xap

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a logger for the given level and output format ("console" or "json").
func New(level, format string) (*zap.Logger, error) {
	var logLevel zap.AtomicLevel
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("failed to parse log level %q: %w", level, err)
	}

	switch format {
	case "", FormatConsole:
		return humanReadable(logLevel).Build()
	case FormatJSON:
		loggerConfig := zap.NewProductionConfig()
		loggerConfig.Level = logLevel
		return loggerConfig.Build()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ReplaceGlobals installs the logger returned by New as zap.L() and
// returns the function restoring the previous one.
func ReplaceGlobals(level, format string) (func(), error) {
	z, err := New(level, format)
	if err != nil {
		return nil, err
	}
	undo := zap.ReplaceGlobals(z)
	return func() {
		_ = z.Sync()
		undo()
	}, nil
}

func humanReadable(level zap.AtomicLevel) zap.Config {
	encoder := zap.NewDevelopmentEncoderConfig()
	encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return zap.Config{
		Development:       false,
		Level:             level,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		Encoding:          "console",
		EncoderConfig:     encoder,
		DisableStacktrace: false,
	}
}
