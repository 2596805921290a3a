// Package log provides structured logging for the wallet.
//
// Output goes to stderr so that CLI results on stdout stay machine readable.
// Key material, mnemonics and memo plaintext must never be logged.
package log

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers.
var (
	Wallet zerolog.Logger
	Store  zerolog.Logger
	Engine zerolog.Logger
	Escrow zerolog.Logger
	RPC    zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stderr, "info")
	initComponentLoggers()
}

// Log file rotation limits.
const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 3
	fileMaxAgeDays = 28
)

// rotator is the active log file, closed when Init is called again.
var rotator *lumberjack.Logger

// Init configures the global logger. When file is non-empty, entries are
// written to the console and to a size-rotated JSON file.
func Init(level string, jsonOutput bool, file string) error {
	var console io.Writer = os.Stderr
	if !jsonOutput {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	if rotator != nil {
		rotator.Close()
		rotator = nil
	}

	if file == "" {
		Logger = newLogger(console, level)
		initComponentLoggers()
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return err
	}
	rotator = &lumberjack.Logger{
		Filename:   file,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
	}
	Logger = newLogger(zerolog.MultiLevelWriter(console, rotator), level)
	initComponentLoggers()
	return nil
}

// SetOutput redirects every logger to w as JSON. Used by tests to capture
// or silence output.
func SetOutput(w io.Writer, level string) {
	Logger = newLogger(w, level)
	initComponentLoggers()
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}, level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a level name to zerolog.Level, defaulting to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Wallet = WithComponent("wallet")
	Store = WithComponent("store")
	Engine = WithComponent("engine")
	Escrow = WithComponent("escrow")
	RPC = WithComponent("rpc")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Timed logs the duration of an operation at debug level when the returned
// func is called.
func Timed(l zerolog.Logger, op string) func() {
	start := time.Now()
	return func() {
		l.Debug().Str("operation", op).Dur("duration", time.Since(start)).Msg("done")
	}
}
