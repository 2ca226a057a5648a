package ipc

import "errors"

// Transport error taxonomy. Port and Router operations report these by
// return value; they never panic or abort the process.
var (
	// ErrIncompleteMessage means the peer closed the connection mid-message.
	ErrIncompleteMessage = errors.New("ipc: incomplete message")

	// ErrReadFailed means a read() or recvmsg() syscall failed for a reason
	// other than an incomplete message.
	ErrReadFailed = errors.New("ipc: read failed")

	// ErrWriteFailed means a write() or sendmsg() syscall failed.
	ErrWriteFailed = errors.New("ipc: write failed")

	// ErrBadFileDescriptor means the underlying fd was closed or invalid.
	ErrBadFileDescriptor = errors.New("ipc: bad file descriptor")

	// ErrPollError means epoll_wait (or equivalent) failed unrecoverably.
	ErrPollError = errors.New("ipc: poll error")

	// ErrTooManyHandles means a send was attempted with more than
	// MaxHandlesPerMessage handles.
	ErrTooManyHandles = errors.New("ipc: too many handles")

	// ErrUnknown covers kernel failures that don't map to a more specific
	// taxonomy entry (e.g. create_pair refused by the kernel).
	ErrUnknown = errors.New("ipc: unknown transport error")
)
