package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu                  sync.RWMutex
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
	levelVar            = new(slog.LevelVar)
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Add trace and fatal level names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// RotationConfig controls file log rotation.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

// Init initializes the logging system with structured and human-readable loggers.
// Structured logs go to stdout as JSON, human-readable logs to stderr as text.
func Init() {
	SetOutput(os.Stdout, os.Stderr)
}

// SetLevel sets the minimum logging level for both loggers.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return levelVar.Level()
}

// SetOutput redirects both loggers, keeping the current level.
func SetOutput(structuredOutput, humanReadableOutput io.Writer) {
	opts := &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceLevel,
	}

	mu.Lock()
	structuredLogger = slog.New(slog.NewJSONHandler(structuredOutput, opts))
	humanReadableLogger = slog.New(slog.NewTextHandler(humanReadableOutput, opts))
	mu.Unlock()

	slog.SetDefault(structuredLogger)
}

// ParseLevel maps a configuration string to a level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return structuredLogger
}

// HumanReadable returns the globally configured human-readable (Text) logger.
// Returns nil if Init() has not been called.
func HumanReadable() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return humanReadableLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// Returns nil if Init() has not been called.
func ForService(serviceName string) *slog.Logger {
	base := Structured()
	if base == nil {
		return nil
	}
	return base.With("service", serviceName)
}

// Fatal logs a fatal message using the custom Fatal level and then exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// NewFileLogger creates a new slog.Logger instance writing JSON logs to
// filePath, rotated by lumberjack. It returns the logger and a close func.
func NewFileLogger(filePath, serviceName string, level slog.Level, rotation RotationConfig) (*slog.Logger, func() error, error) {
	// lumberjack doesn't create directories
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   rotation.Compress,
	}
	if rotation.MaxSizeMB > 0 {
		logWriter.MaxSize = rotation.MaxSizeMB
	}
	if rotation.MaxBackups > 0 {
		logWriter.MaxBackups = rotation.MaxBackups
	}
	if rotation.MaxAgeDays > 0 {
		logWriter.MaxAge = rotation.MaxAgeDays
	}

	fileHandler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	})

	logger := slog.New(fileHandler).With("service", serviceName)
	return logger, logWriter.Close, nil
}

// Tee returns a logger that writes every record to both loggers.
func Tee(a, b *slog.Logger) *slog.Logger {
	return slog.New(teeHandler{a.Handler(), b.Handler()})
}

type teeHandler struct {
	a, b slog.Handler
}

func (h teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.a.Enabled(ctx, level) || h.b.Enabled(ctx, level)
}

func (h teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errA, errB error
	if h.a.Enabled(ctx, r.Level) {
		errA = h.a.Handle(ctx, r.Clone())
	}
	if h.b.Enabled(ctx, r.Level) {
		errB = h.b.Handle(ctx, r.Clone())
	}
	if errA != nil {
		return errA
	}
	return errB
}

func (h teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{h.a.WithAttrs(attrs), h.b.WithAttrs(attrs)}
}

func (h teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{h.a.WithGroup(name), h.b.WithGroup(name)}
}
