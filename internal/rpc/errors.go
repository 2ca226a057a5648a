package rpc

import "errors"

// Protocol-level error taxonomy. These indicate peer
// misbehavior or a local decode failure and are fatal to the affected
// Channel's loop.
var (
	// ErrMalformedEnvelope means the RpcMessage envelope could not be
	// decoded from a transport Message's payload.
	ErrMalformedEnvelope = errors.New("rpc: malformed envelope")

	// ErrUnknownObject means a dispatch named an ObjectId with no bound
	// receiver.
	ErrUnknownObject = errors.New("rpc: unknown object")

	// ErrShortRead means a Deserializer read ran past the end of its
	// buffer.
	ErrShortRead = errors.New("rpc: short read")

	// ErrTransport wraps a transport-layer failure surfaced while sending
	// or receiving an RpcMessage's framing Message.
	ErrTransport = errors.New("rpc: transport failure")
)
