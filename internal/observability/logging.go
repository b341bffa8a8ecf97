// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger = &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stdout, nil))}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// CorrelationID is the context key carrying the request correlation ID.
const CorrelationID LogContextKey = "correlation_id"

// Verbosity switches the chatty per-operation loggers on or off.
var Verbosity = struct {
	Stores   bool
	Realtime bool
}{Stores: true, Realtime: true}

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// StoreLogger logs operations against one SQL table or Mongo collection.
// Successful writes go out at debug level; failures at error level.
type StoreLogger struct {
	store string
	base  *Logger
}

// NewStoreLogger returns a StoreLogger tagged with store.
func NewStoreLogger(store string) *StoreLogger {
	return &StoreLogger{store: store, base: GlobalLogger}
}

// Done records a successful write. attrs are slog key/value pairs.
func (l *StoreLogger) Done(ctx context.Context, op string, attrs ...any) {
	if !Verbosity.Stores {
		return
	}
	l.base.DebugContext(ctx, "store write",
		append([]any{"store", l.store, "op", op, "correlation_id", ExtractCorrelationID(ctx)}, attrs...)...)
}

// Failed records a failed store operation.
func (l *StoreLogger) Failed(ctx context.Context, op string, err error) {
	if !Verbosity.Stores {
		return
	}
	l.base.ErrorContext(ctx, "store error",
		"store", l.store,
		"op", op,
		"correlation_id", ExtractCorrelationID(ctx),
		"error", err.Error(),
	)
}

// RealtimeLogger logs connection and delivery events for one realtime
// component.
type RealtimeLogger struct {
	component string
	base      *Logger
}

// NewRealtimeLogger returns a RealtimeLogger tagged with component.
func NewRealtimeLogger(component string) *RealtimeLogger {
	return &RealtimeLogger{component: component, base: GlobalLogger}
}

// Connected logs a registered connection.
func (l *RealtimeLogger) Connected(ctx context.Context, userID uint, connID string) {
	if !Verbosity.Realtime {
		return
	}
	l.base.InfoContext(ctx, "connection registered",
		"component", l.component, "user_id", userID, "conn_id", connID)
}

// Disconnected logs a removed connection.
func (l *RealtimeLogger) Disconnected(ctx context.Context, userID uint, connID, reason string) {
	if !Verbosity.Realtime {
		return
	}
	l.base.InfoContext(ctx, "connection removed",
		"component", l.component, "user_id", userID, "conn_id", connID, "reason", reason)
}

// Failed logs a delivery or relay failure for an event sent to room.
func (l *RealtimeLogger) Failed(ctx context.Context, room, eventType string, err error, attrs ...any) {
	if !Verbosity.Realtime {
		return
	}
	l.base.ErrorContext(ctx, "realtime error",
		append([]any{"component", l.component, "room", room, "event_type", eventType, "error", err.Error()}, attrs...)...)
}

// Lifecycle logs a state change of the component.
func (l *RealtimeLogger) Lifecycle(ctx context.Context, event string, attrs ...any) {
	if !Verbosity.Realtime {
		return
	}
	l.base.InfoContext(ctx, "realtime lifecycle",
		append([]any{"component", l.component, "event", event}, attrs...)...)
}

// LogAsyncError logs a failure in work that has no caller to return to.
func LogAsyncError(ctx context.Context, op string, err error, attrs ...any) {
	GlobalLogger.ErrorContext(ctx, "async operation failed",
		append([]any{"op", op, "error", err.Error(), "correlation_id", ExtractCorrelationID(ctx)}, attrs...)...)
}
