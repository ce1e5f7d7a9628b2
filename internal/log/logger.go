// Package log builds the structured logger used by the utf8stream command.
//
// Entries are JSON objects with "timestamp", "level" and "message" keys.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// NewLogger returns a logger writing to os.Stderr at the named level.
func NewLogger(level string) (*zap.Logger, error) {
	return NewLoggerWithWriter(os.Stderr, level)
}

// NewLoggerWithWriter returns a logger writing to w at the named level
// ("debug", "info", "warn", "error"; empty means DefaultLevel).
func NewLoggerWithWriter(w io.Writer, level string) (*zap.Logger, error) {
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		lvl,
	)
	return zap.New(core), nil
}
