package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, encoding and destination of log output.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text or json
	Output string // stdout, stderr or a file path
}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  = newDefault()
	closer = func() error { return nil }
)

func newDefault() *zap.SugaredLogger {
	cfg := baseConfig("text")
	cfg.Level = level
	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func baseConfig(format string) zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	if format != "json" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}
	return cfg
}

// Configure replaces the process logger.
//
// An unknown level keeps the current one. Output defaults to stdout.
func Configure(c Config) error {
	format := strings.ToLower(c.Format)
	if format != "" && format != "text" && format != "json" {
		return fmt.Errorf("unknown log format %q", c.Format)
	}

	cfg := baseConfig(format)
	cfg.Level = level
	if c.Output != "" {
		cfg.OutputPaths = []string{c.Output}
	}

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	SetLevel(c.Level)

	mu.Lock()
	old := sugar
	sugar = l.Sugar()
	closer = l.Sync
	mu.Unlock()

	_ = old.Sync()
	return nil
}

// SetLevel changes the minimum level at runtime.
func SetLevel(name string) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		level.SetLevel(zapcore.DebugLevel)
	case "INFO":
		level.SetLevel(zapcore.InfoLevel)
	case "WARN":
		level.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		level.SetLevel(zapcore.ErrorLevel)
	}
}

// Enabled reports whether messages at the named level are written.
func Enabled(name string) bool {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return false
	}
	return level.Enabled(l)
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return closer()
}

func log(l zapcore.Level, format string, v ...any) {
	if !level.Enabled(l) {
		return
	}
	mu.RLock()
	s := sugar
	mu.RUnlock()

	switch l {
	case zapcore.DebugLevel:
		s.Debugf(format, v...)
	case zapcore.InfoLevel:
		s.Infof(format, v...)
	case zapcore.WarnLevel:
		s.Warnf(format, v...)
	default:
		s.Errorf(format, v...)
	}
}

func Debug(format string, v ...any) {
	log(zapcore.DebugLevel, format, v...)
}

func Info(format string, v ...any) {
	log(zapcore.InfoLevel, format, v...)
}

func Warn(format string, v ...any) {
	log(zapcore.WarnLevel, format, v...)
}

func Error(format string, v ...any) {
	log(zapcore.ErrorLevel, format, v...)
}
