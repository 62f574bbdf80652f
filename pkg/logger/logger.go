// Package logger builds the zap logger shared by every component. The logger
// is constructed once in the CLI and passed down explicitly.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
)

// Logger owns the zap logger and the file sink behind it.
type Logger struct {
	*zap.Logger
	file *DailyFile
}

// New creates a logger writing to console and, when cfg.Dir is set, to
// {cfg.Dir}/{YYYY-MM-DD}.log.
func New(cfg config.LoggerConfig) (*Logger, error) {
	return NewWithConsole(cfg, zapcore.Lock(os.Stdout))
}

// NewWithConsole is New with an explicit console writer.
func NewWithConsole(cfg config.LoggerConfig, console zapcore.WriteSyncer) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.DebugLevel)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(cfg), console, level),
	}

	var file *DailyFile
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		file = NewDailyFile(cfg.Dir, cfg.MaxSizeMB, cfg.MaxBackups, cfg.Compress)
		cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(file), level))
	}

	name := cfg.ServiceName
	if name == "" {
		name = "shopper-runner"
	}
	z := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named(name)
	return &Logger{Logger: z, file: file}, nil
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	syncErr := l.Sync()
	if syncErr != nil && ignorableSyncError(syncErr) {
		syncErr = nil
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return err
		}
	}
	return syncErr
}

// ignorableSyncError filters errors from syncing terminals and pipes.
func ignorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stdout") ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "inappropriate ioctl") ||
		strings.Contains(msg, "operation not supported")
}

func consoleEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	if cfg.Format == "json" {
		return jsonEncoder()
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.CallerKey = ""
	return zapcore.NewConsoleEncoder(ec)
}

func jsonEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}
