// Package log provides structured logging for the ragstream services.
//
// All entries are JSON-encoded with RFC3339-nano timestamps and carry the
// service name; request-scoped loggers additionally carry a request_id so
// one query's pipeline stages can be correlated across log lines.
package log

import (
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the named service, writing to os.Stderr.
func New(service string) *zap.Logger {
	return NewWithWriter(service, os.Stderr)
}

// NewWithWriter creates a logger for the named service writing to w.
func NewWithWriter(service string, w io.Writer) *zap.Logger {
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
		zapcore.DebugLevel,
	)

	return zap.New(core).With(zap.String("service", service))
}

// WithRequestID returns a request-scoped logger carrying a fresh
// request_id, and the id itself for echoing to the caller.
func WithRequestID(l *zap.Logger) (*zap.Logger, string) {
	id := uuid.NewString()
	return l.With(zap.String("request_id", id)), id
}
