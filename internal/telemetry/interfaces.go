// Package telemetry defines the narrow logging and counter interfaces editor
// components depend on, so tests can substitute fakes without a router.
package telemetry

import (
	"log"

	"raise-and-raze/editor/logging"
)

// Logger is the printf-style logging surface editor components require.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts a function into a Logger. A nil func is a no-op.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger; a nil logger yields a no-op.
func WrapLogger(logger *log.Logger) Logger {
	if logger == nil {
		return LoggerFunc(nil)
	}
	return LoggerFunc(logger.Printf)
}

// Metrics is the counter surface editor components require.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the logging counter table; a nil table yields a no-op.
func WrapMetrics(table *logging.Metrics) Metrics {
	return metricsAdapter{table: table}
}

type metricsAdapter struct {
	table *logging.Metrics
}

func (m metricsAdapter) Add(key string, delta uint64) {
	if m.table == nil {
		return
	}
	m.table.TelemetryAdd(key, delta)
}

func (m metricsAdapter) Store(key string, value uint64) {
	if m.table == nil {
		return
	}
	m.table.TelemetryStore(key, value)
}
