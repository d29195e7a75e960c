// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// ParseLogLevel maps a level name (trace, debug, info, warn, error, crit) or a
// legacy numeric verbosity (0 crit ... 5 trace) to a log level
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "trce":
		return log.LevelTrace, nil
	case "debug", "dbug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error", "eror":
		return log.LevelError, nil
	case "crit", "critical":
		return log.LevelCrit, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 5 {
		return log.FromLegacyLevel(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
}

// NewLogHandler builds the root log handler described by c, writing to w
func (c *LoggingConfig) NewLogHandler(w io.Writer) (slog.Handler, error) {
	lvl, err := ParseLogLevel(c.Level)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(c.Format) {
	case "json":
		return log.JSONHandlerWithLevel(w, lvl), nil
	case "text", "":
		return log.NewTerminalHandlerWithLevel(w, lvl, c.Color), nil
	default:
		return nil, ErrInvalidLogFormat
	}
}

// SetupLogging installs the configured handler as the default logger. The
// returned closer releases the log file, if any.
func (c *Config) SetupLogging() (io.Closer, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	path, err := c.GetLogFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	handler, err := c.Logging.NewLogHandler(w)
	if err != nil {
		closer.Close()
		return nil, err
	}
	log.SetDefault(log.NewLogger(handler))
	return closer, nil
}
