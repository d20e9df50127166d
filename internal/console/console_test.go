package console

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNilConsoleIsLegalAndSilent(t *testing.T) {
	SetDefault(nil)
	// None of these may panic without a console installed.
	Info(nil, "x")
	Warn(nil, "x")
	Error(nil, "x")
	Progress(nil, "connect", true)
	Connected(nil, "15.0", "localhost", 5432)
	QueryTiming(nil, "SELECT 1", time.Millisecond, 1)
}

func TestDefaultConsoleFallback(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetDefault(NewLogger(zap.New(core)))
	defer SetDefault(nil)

	Info(nil, "hello")
	Progress(nil, "connect", true)
	Connected(nil, "8.0.36", "db", 3306)

	entries := logs.All()
	assert.GreaterOrEqual(t, len(entries), 3)
	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, "connection progress", entries[1].Message)
	assert.Equal(t, "connected", entries[2].Message)
}

func TestExplicitConsoleWinsOverDefault(t *testing.T) {
	defCore, defLogs := observer.New(zap.DebugLevel)
	SetDefault(NewLogger(zap.New(defCore)))
	defer SetDefault(nil)

	core, logs := observer.New(zap.DebugLevel)
	own := NewLogger(zap.New(core))
	Info(own, "direct")

	assert.Equal(t, 1, logs.Len())
	assert.Zero(t, defLogs.Len())
}

func TestLoggerQueryTimingFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLogger(zap.New(core))
	l.EmitQueryTiming("SELECT 1", 5*time.Millisecond, 3)

	entries := logs.All()
	assert.Equal(t, 1, len(entries))
	fields := entries[0].ContextMap()
	assert.Equal(t, "SELECT 1", fields["sql"])
	assert.Equal(t, int64(3), fields["rows"])
}
