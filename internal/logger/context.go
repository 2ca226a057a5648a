package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context for the IPC stack.
type LogContext struct {
	TraceID    string    // correlation id assigned to a Port connection
	SpanID     string    // correlation id assigned to a single Message exchange
	PortID     uint64    // local PortId assigned by the Router
	RemotePort uint64    // PortId of the peer, when known
	ObjectID   uint64    // ObjectId targeted by a Channel dispatch
	Opcode     uint64    // RpcMessage opcode in flight
	Handles    int       // number of handles carried by the current message
	StartTime  time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted Port.
func NewLogContext(portID uint64) *LogContext {
	return &LogContext{
		PortID:    portID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:    lc.TraceID,
		SpanID:     lc.SpanID,
		PortID:     lc.PortID,
		RemotePort: lc.RemotePort,
		ObjectID:   lc.ObjectID,
		Opcode:     lc.Opcode,
		Handles:    lc.Handles,
		StartTime:  lc.StartTime,
	}
}

// WithObject returns a copy with the object id set
func (lc *LogContext) WithObject(objectID uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ObjectID = objectID
	}
	return clone
}

// WithOpcode returns a copy with the opcode set
func (lc *LogContext) WithOpcode(opcode uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Opcode = opcode
	}
	return clone
}

// WithRemote returns a copy with the remote port and handle count set
func (lc *LogContext) WithRemote(remotePort uint64, handles int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.RemotePort = remotePort
		clone.Handles = handles
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
