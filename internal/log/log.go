package log

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component is attached to every structured record as "component".
const Component = "dupremover"

// L is the global sugared logger used throughout dupremover.
// It is a no-op until one of the Init functions runs.
var L = zap.NewNop().Sugar()

// ParseLevel maps debug|info|warn|error to a zap level. Unknown values map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitWithConfig initializes zap logger based on level and format.
// level: debug|info|warn|error
// format: json|console
func InitWithConfig(level, format string) error {
	return InitWithWriter(os.Stderr, level, format)
}

// InitWithWriter is InitWithConfig with an explicit destination.
func InitWithWriter(w io.Writer, level, format string) error {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.ToLower(format) == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), ParseLevel(level))
	logger := zap.New(core, zap.AddCaller())
	L = logger.Sugar()
	return nil
}

// Sync flushes buffered logs.
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}
