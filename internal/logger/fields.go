package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across Port, Router, and
// Channel. Use these keys consistently so log lines can be aggregated and
// queried the same way regardless of which layer emitted them.
const (
	// ========================================================================
	// Correlation
	// ========================================================================
	KeyTraceID = "trace_id" // correlation id for a Port connection's lifetime
	KeySpanID  = "span_id"  // correlation id for a single Message exchange

	// ========================================================================
	// Transport (Port / Router)
	// ========================================================================
	KeyPortID     = "port_id"     // local PortId
	KeyRemotePort = "remote_port" // PortId of the peer, when known
	KeyFd         = "fd"          // raw file descriptor backing a Port
	KeyHandles    = "handles"     // number of handles carried by a Message
	KeyMsgSize    = "msg_size"    // size in bytes of a Message payload

	// ========================================================================
	// Dispatch (Channel / RpcObject)
	// ========================================================================
	KeyObjectID = "object_id" // ObjectId targeted by a dispatch
	KeyOpcode   = "opcode"    // RpcMessage opcode
	KeyRemoteID = "remote_id" // ObjectId of the remote peer bound to a Proxy/Receiver

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // numeric/sentinel error code
	KeyOperation  = "operation"   // sub-operation label for multi-step handling
)

// TraceID returns a trace_id attribute.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a span_id attribute.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// PortID returns a port_id attribute.
func PortID(id uint64) slog.Attr {
	return slog.Uint64(KeyPortID, id)
}

// RemotePort returns a remote_port attribute.
func RemotePort(id uint64) slog.Attr {
	return slog.Uint64(KeyRemotePort, id)
}

// Fd returns an fd attribute.
func Fd(fd int) slog.Attr {
	return slog.Int(KeyFd, fd)
}

// Handles returns a handles attribute.
func Handles(n int) slog.Attr {
	return slog.Int(KeyHandles, n)
}

// MsgSize returns a msg_size attribute.
func MsgSize(n int) slog.Attr {
	return slog.Int(KeyMsgSize, n)
}

// ObjectID returns an object_id attribute.
func ObjectID(id uint64) slog.Attr {
	return slog.Uint64(KeyObjectID, id)
}

// Opcode returns an opcode attribute.
func Opcode(op uint64) slog.Attr {
	return slog.Uint64(KeyOpcode, op)
}

// RemoteID returns a remote_id attribute.
func RemoteID(id uint64) slog.Attr {
	return slog.Uint64(KeyRemoteID, id)
}

// DurationMs returns a duration_ms attribute.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns an error attribute. Returns a no-op attribute for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns an error_code attribute.
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Operation returns an operation attribute.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}
