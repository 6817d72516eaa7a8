package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging for Hammer components.
// Every entry carries a "component" field so output from the registry,
// driver, dispatcher and HTTP layer can be filtered independently.
type Logger struct {
	component string
	sugar     *zap.SugaredLogger
}

// Options configures the process-wide base logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Format is json or console. Empty means json.
	Format string

	// File is an optional log file path. Entries are appended; stderr is used when empty.
	File string
}

var (
	baseMu sync.RWMutex
	base   *zap.Logger

	// fallbackOnce builds the stderr logger used before Init is called
	fallbackOnce sync.Once
	fallback     *zap.Logger
)

// Init builds the base logger from opts and installs it for all
// subsequently created component loggers. It may be called again to
// reconfigure; existing Logger values keep their old core.
func Init(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	switch strings.ToLower(opts.Format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'console')", opts.Format)
	}

	sink := zapcore.Lock(os.Stderr)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0750); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.Lock(file)
	}

	SetBase(zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller(), zap.AddCallerSkip(1)))
	return nil
}

// SetBase installs an already-built zap logger as the base. Tests use this
// with zaptest/observer to assert on emitted entries.
func SetBase(l *zap.Logger) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base = l
}

// Sync flushes the base logger.
func Sync() error {
	baseMu.RLock()
	defer baseMu.RUnlock()
	if base == nil {
		return nil
	}
	return base.Sync()
}

// ParseLevel maps a level name onto a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", level)
	}
}

func currentBase() *zap.Logger {
	baseMu.RLock()
	b := base
	baseMu.RUnlock()
	if b != nil {
		return b
	}

	fallbackOnce.Do(func() {
		l, err := zap.NewDevelopment(zap.AddCallerSkip(1))
		if err != nil {
			l = zap.NewNop()
		}
		fallback = l
	})
	return fallback
}

// NewLogger creates a logger for a specific component.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		sugar:     currentBase().Sugar().With("component", component),
	}
}

// With returns a child logger that adds the given key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		component: l.component,
		sugar:     l.sugar.With(keysAndValues...),
	}
}

// Component returns the component name this logger was created for.
func (l *Logger) Component() string {
	return l.component
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Infow logs a message with structured key/value context.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}
