// Package logging provides structured logging on top of zap.
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Logger provides structured logging capabilities
type Logger struct {
	level  zap.AtomicLevel
	format LogFormat
	z      *zap.Logger
	fields []zap.Field
}

// NewLogger creates a new logger instance writing to stdout
func NewLogger(level LogLevel, format LogFormat) *Logger {
	atom := zap.NewAtomicLevelAt(zapLevel(level))
	return &Logger{
		level:  atom,
		format: format,
		z:      buildZap(atom, format, os.Stdout),
	}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return &Logger{
		level:  zap.NewAtomicLevelAt(zapcore.FatalLevel),
		format: FormatJSON,
		z:      zap.NewNop(),
	}
}

func buildZap(atom zap.AtomicLevel, format LogFormat, w io.Writer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == FormatText {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), atom)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

func (l *Logger) clone(extra ...zap.Field) *Logger {
	fields := make([]zap.Field, 0, len(l.fields)+len(extra))
	fields = append(fields, l.fields...)
	fields = append(fields, extra...)
	return &Logger{
		level:  l.level,
		format: l.format,
		z:      l.z,
		fields: fields,
	}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.clone(zap.Any(key, value))
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	extra := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		extra = append(extra, zap.Any(k, v))
	}
	return l.clone(extra...)
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	return l.clone(zap.Error(err))
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(zapcore.DebugLevel, message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(zapcore.DebugLevel, format, args...)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(zapcore.InfoLevel, message)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(zapcore.InfoLevel, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(zapcore.WarnLevel, message)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(zapcore.WarnLevel, format, args...)
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.log(zapcore.ErrorLevel, message)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(zapcore.ErrorLevel, format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string) {
	l.log(zapcore.FatalLevel, message)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logf(zapcore.FatalLevel, format, args...)
}

func (l *Logger) log(level zapcore.Level, message string) {
	if ce := l.z.Check(level, message); ce != nil {
		ce.Write(l.fields...)
	}
}

func (l *Logger) logf(level zapcore.Level, format string, args ...interface{}) {
	if level < zapcore.DPanicLevel && !l.z.Core().Enabled(level) {
		return
	}
	if ce := l.z.Check(level, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write(l.fields...)
	}
}

// SetOutput sets the output writer for the logger
func (l *Logger) SetOutput(w io.Writer) {
	l.z = buildZap(l.level, l.format, w)
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(zapLevel(level))
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Zap exposes the underlying zap logger with the context fields attached
func (l *Logger) Zap() *zap.Logger {
	return l.z.With(l.fields...)
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(level LogLevel, format LogFormat) {
	globalLogger = NewLogger(level, format)
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo, FormatJSON)
	}
	return globalLogger
}

// Context-aware logging helpers

type loggerKey struct{}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return GetGlobalLogger()
}

// Convenience functions using global logger

// Info logs an info message using the global logger
func Info(message string) {
	GetGlobalLogger().Info(message)
}

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...interface{}) {
	GetGlobalLogger().Infof(format, args...)
}

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...interface{}) {
	GetGlobalLogger().Warnf(format, args...)
}

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...interface{}) {
	GetGlobalLogger().Errorf(format, args...)
}

// WithField adds a field to the global logger
func WithField(key string, value interface{}) *Logger {
	return GetGlobalLogger().WithField(key, value)
}

// WithFields adds multiple fields to the global logger
func WithFields(fields map[string]interface{}) *Logger {
	return GetGlobalLogger().WithFields(fields)
}

// WithError adds an error to the global logger
func WithError(err error) *Logger {
	return GetGlobalLogger().WithError(err)
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		log.Printf("Unknown log level '%s', defaulting to 'info'", level)
		return LevelInfo
	}
}

// ParseLogFormat parses a string into a LogFormat
func ParseLogFormat(format string) LogFormat {
	switch format {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		log.Printf("Unknown log format '%s', defaulting to 'json'", format)
		return FormatJSON
	}
}
