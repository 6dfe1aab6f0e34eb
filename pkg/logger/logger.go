// Package logger provides a centralized logging configuration for svnsync
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu sync.RWMutex
	// Global logger instance
	syncLogger *zap.Logger
)

// LogConfig holds the logging configuration
type LogConfig struct {
	Level       string
	OutputPath  string
	MaxSize     int // megabytes
	MaxBackups  int
	MaxAge      int // days
	Compress    bool
	Development bool
	EnableJSON  bool
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() *LogConfig {
	home, _ := os.UserHomeDir()
	return &LogConfig{
		Level:      "info",
		OutputPath: filepath.Join(home, ".svnsync", "logs", "svnsync.log"),
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

// Initialize sets up the global logger with the given configuration
func Initialize(cfg *LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch {
	case cfg.EnableJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case cfg.Development:
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
		return err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.OutputPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	writers := []zapcore.WriteSyncer{zapcore.AddSync(fileWriter)}
	// In development mode, also log to the console
	if cfg.Development {
		writers = append(writers, zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.NewMultiWriteSyncer(writers...),
		zap.NewAtomicLevelAt(level),
	)

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	SetLogger(zap.New(core, opts...))
	return nil
}

// SetLogger replaces the global logger. Tests use it to install zap.NewNop or an observer.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	syncLogger = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
}

// Get returns the global logger instance
func Get() *zap.Logger {
	mu.RLock()
	l := syncLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	// Fall back to a production console logger when Initialize was never called
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	SetLogger(l)
	return l
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if syncLogger != nil {
		return syncLogger.Sync()
	}
	return nil
}

// Named returns the global logger tagged with a component field
func Named(component string) *zap.Logger {
	return Get().With(zap.String("component", component))
}
