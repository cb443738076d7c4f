package errors

import (
	"context"
	"log/slog"
)

// LogHandler writes reported errors through slog at error level.
type LogHandler struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Verbose adds stack traces.
	Verbose bool
}

func (h *LogHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *LogHandler) HandleError(err *BridgeError) {
	if err == nil {
		return
	}
	attrs := make([]slog.Attr, 0, 6)
	attrs = append(attrs, slog.String("op", err.Op), slog.String("kind", err.Kind.String()))
	if err.Channel != "" {
		attrs = append(attrs, slog.String("channel", err.Channel))
	}
	if err.Method != "" {
		attrs = append(attrs, slog.String("method", err.Method))
	}
	attrs = append(attrs, slog.Any("error", err.Err))
	attrs = h.withStack(attrs, err.StackTrace)
	h.logger().LogAttrs(context.Background(), slog.LevelError, "bridge error", attrs...)
}

func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	attrs := []slog.Attr{slog.Any("value", err.Value)}
	if err.Op != "" {
		attrs = append(attrs, slog.String("op", err.Op))
	}
	attrs = h.withStack(attrs, err.StackTrace)
	h.logger().LogAttrs(context.Background(), slog.LevelError, "bridge panic", attrs...)
}

func (h *LogHandler) withStack(attrs []slog.Attr, stack string) []slog.Attr {
	if h.Verbose && stack != "" {
		attrs = append(attrs, slog.String("stack", stack))
	}
	return attrs
}
