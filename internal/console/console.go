// Package console defines the collaborator interface the drivers emit
// progress and diagnostics through, plus a zap-backed default
// implementation. Absence of a console is legal and silent: every
// call site goes through the package helpers, which tolerate nil.
package console

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Console is the rendering surface the core optionally holds.
type Console interface {
	Info(msg string)
	Success(msg string)
	Warn(msg string)
	Error(msg string)
	EmitConnectionProgress(stage string, success bool)
	EmitConnected(serverVersion, host string, port int)
	EmitQueryTiming(sql string, elapsed time.Duration, rows int64)
}

// The process-wide default console: set once at application start,
// cleared at shutdown. All other toolkit state lives in sessions and
// connections.
var (
	mu       sync.RWMutex
	fallback Console
)

// SetDefault installs the process default console; nil clears it.
func SetDefault(c Console) {
	mu.Lock()
	defer mu.Unlock()
	fallback = c
}

// Default returns the process default console, which may be nil.
func Default() Console {
	mu.RLock()
	defer mu.RUnlock()
	return fallback
}

// Helpers that tolerate a nil console, falling back to the default.

func pick(c Console) Console {
	if c != nil {
		return c
	}
	return Default()
}

func Info(c Console, msg string) {
	if c = pick(c); c != nil {
		c.Info(msg)
	}
}

func Warn(c Console, msg string) {
	if c = pick(c); c != nil {
		c.Warn(msg)
	}
}

func Error(c Console, msg string) {
	if c = pick(c); c != nil {
		c.Error(msg)
	}
}

func Progress(c Console, stage string, success bool) {
	if c = pick(c); c != nil {
		c.EmitConnectionProgress(stage, success)
	}
}

func Connected(c Console, serverVersion, host string, port int) {
	if c = pick(c); c != nil {
		c.EmitConnected(serverVersion, host, port)
	}
}

func QueryTiming(c Console, sql string, elapsed time.Duration, rows int64) {
	if c = pick(c); c != nil {
		c.EmitQueryTiming(sql, elapsed, rows)
	}
}

// Logger is the zap-backed Console.
type Logger struct {
	log *zap.Logger
}

// NewLogger wraps an existing zap logger.
func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log}
}

// NewFileLogger builds a production console writing JSON lines to path
// with lumberjack rotation.
func NewFileLogger(path string, maxSizeMB int) *Logger {
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
	})
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, sink, zapcore.InfoLevel)
	return &Logger{log: zap.New(core)}
}

func (l *Logger) Info(msg string)    { l.log.Info(msg) }
func (l *Logger) Success(msg string) { l.log.Info(msg, zap.Bool("success", true)) }
func (l *Logger) Warn(msg string)    { l.log.Warn(msg) }
func (l *Logger) Error(msg string)   { l.log.Error(msg) }

func (l *Logger) EmitConnectionProgress(stage string, success bool) {
	l.log.Debug("connection progress", zap.String("stage", stage), zap.Bool("success", success))
}

func (l *Logger) EmitConnected(serverVersion, host string, port int) {
	l.log.Info("connected",
		zap.String("server_version", serverVersion),
		zap.String("host", host),
		zap.Int("port", port))
}

func (l *Logger) EmitQueryTiming(sql string, elapsed time.Duration, rows int64) {
	l.log.Debug("query",
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows))
}
