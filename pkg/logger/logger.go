package logger

import "context"

// Logger is the structured logger used across tilewindow.
// keysAndValues are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Fatal(msg string, keysAndValues ...any)
}

type noOpLogger struct{}

func (noOpLogger) Debug(msg string, keysAndValues ...any) {}
func (noOpLogger) Info(msg string, keysAndValues ...any)  {}
func (noOpLogger) Warn(msg string, keysAndValues ...any)  {}
func (noOpLogger) Error(msg string, keysAndValues ...any) {}
func (noOpLogger) Fatal(msg string, keysAndValues ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger { return noOpLogger{} }

type contextKey string

const loggerKey contextKey = "logger"

func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by WithLogger, or a no-op logger.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Nop()
}
