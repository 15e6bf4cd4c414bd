// Package logger configures the process-wide structured logger and hands
// out component-scoped sub-loggers: storage, the event listener, the
// session bridge, the permission evaluator, and the scheduler.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide logger instance.
var Log zerolog.Logger

// Initialize sets up the global logger. Pretty console output is meant for
// local development; JSON output (the default) is meant for production.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "resalt-bridge").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Storage returns a sub-logger tagged for the storage layer.
func Storage() *zerolog.Logger {
	l := Log.With().Str("component", "storage").Logger()
	return &l
}

// Listener returns a sub-logger tagged for the event listener.
func Listener() *zerolog.Logger {
	l := Log.With().Str("component", "listener").Logger()
	return &l
}

// Session returns a sub-logger tagged for the session/token bridge.
func Session() *zerolog.Logger {
	l := Log.With().Str("component", "session").Logger()
	return &l
}

// Permission returns a sub-logger tagged for the permission evaluator.
func Permission() *zerolog.Logger {
	l := Log.With().Str("component", "permission").Logger()
	return &l
}

// Scheduler returns a sub-logger tagged for the scheduler.
func Scheduler() *zerolog.Logger {
	l := Log.With().Str("component", "scheduler").Logger()
	return &l
}

// HTTP returns a sub-logger tagged for HTTP request events.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
