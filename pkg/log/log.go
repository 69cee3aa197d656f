// Package log wraps zerolog with the small set of conventions the rest of
// this module uses: a process-wide Logger, level/format configuration, and
// a handful of With* helpers for attaching the identifiers that show up
// across transaction, dart, and cell-id log lines.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level names the supported logging verbosities.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagged with a component name (e.g.
// "cmap", "stm", "diskcache").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTxnID derives a child of base tagged with a transaction id, for
// correlating a single Atomically/TryAtomically attempt's retry and
// commit log lines.
func WithTxnID(base zerolog.Logger, txnID string) zerolog.Logger {
	return base.With().Str("txn_id", txnID).Logger()
}

// WithDart derives a child of base tagged with a dart id.
func WithDart(base zerolog.Logger, d uint32) zerolog.Logger {
	return base.With().Uint32("dart", d).Logger()
}

// WithCellID derives a child of base tagged with a cell id.
func WithCellID(base zerolog.Logger, id uint32) zerolog.Logger {
	return base.With().Uint32("cell_id", id).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}
