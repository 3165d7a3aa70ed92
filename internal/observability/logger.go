package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log line and reported by /health.
const ServiceName = "irrigation-advisor"

// NewLogger builds the JSON logger used in every environment. level accepts zap level
// names in any case ("debug", "WARN", "warning"); anything else logs at info.
// Stack traces are attached from error level up.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	cfg.InitialFields = map[string]interface{}{"service": ServiceName}

	return cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
}

func parseLogLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil || s == "" {
		return zap.InfoLevel
	}
	return lvl
}
