//go:build unix

package ipc

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// SocketType selects the Port framing path.
type SocketType int

const (
	// SocketDatagram bundles header and body into one datagram, copied
	// into a single buffer and sent with one sendmsg call.
	SocketDatagram SocketType = iota

	// SocketStream sends the fixed header first, then drains the body in
	// chunks of at most MsgMaxSize because some kernels cap the size of a
	// single ancillary-data-carrying write.
	SocketStream
)

// Port frames Messages over one connected local socket, transferring OS
// handles alongside bytes. A Port exclusively owns its fd:
// closing the Port closes the fd. A Port is not safe for concurrent Send
// from multiple goroutines — callers must dedicate at most one
// sender and one receiver goroutine to a Port, typically the same one.
type Port struct {
	fd         int
	socketType SocketType
	msgMaxSize int
	closed     atomic.Bool
}

// Option configures a Port at construction time.
type Option func(*Port)

// WithMsgMaxSize overrides the stream body-chunk size (default
// DefaultMsgMaxSize). Has no effect on datagram ports.
func WithMsgMaxSize(n int) Option {
	return func(p *Port) {
		if n > 0 {
			p.msgMaxSize = n
		}
	}
}

// NewPort wraps an already-connected socket fd as a Port. The Port takes
// ownership of fd; closing the Port closes it.
func NewPort(fd int, socketType SocketType, opts ...Option) *Port {
	p := &Port{
		fd:         fd,
		socketType: socketType,
		msgMaxSize: DefaultMsgMaxSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPortPair creates two connected Ports over a local domain socket pair.
// Returns ErrUnknown if the kernel refuses to create the pair.
func NewPortPair(socketType SocketType, opts ...Option) (*Port, *Port, error) {
	kernelType := unix.SOCK_DGRAM
	if socketType == SocketStream {
		kernelType = unix.SOCK_STREAM
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, kernelType, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: socketpair: %v", ErrUnknown, err)
	}

	return NewPort(fds[0], socketType, opts...), NewPort(fds[1], socketType, opts...), nil
}

// Fd returns the raw fd for polling. Non-owning: the caller must not close
// it directly.
func (p *Port) Fd() int {
	return p.fd
}

// Close releases the fd. Idempotent after the first call.
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(p.fd)
}

// Send atomically enqueues one Message. On success the kernel has accepted
// all bytes and all handles, duplicating each handle to the peer; Send
// then closes the sender's own copies, so a successful send transfers
// every handle in msg.Handles exactly once and the caller must not close
// or reuse them afterward.
func (p *Port) Send(msg *Message) error {
	if p.closed.Load() {
		return ErrBadFileDescriptor
	}
	if len(msg.Handles) > MaxHandlesPerMessage {
		return ErrTooManyHandles
	}

	header := encodeHeader(msg)

	var err error
	switch p.socketType {
	case SocketDatagram:
		err = p.sendDatagram(header, msg)
	default:
		err = p.sendStream(header, msg)
	}
	if err != nil {
		return err
	}

	for _, h := range msg.Handles {
		_ = unix.Close(h)
	}
	return nil
}

// Receive reads exactly one Message, blocking until one arrives.
func (p *Port) Receive() (*Message, error) {
	if p.closed.Load() {
		return nil, ErrBadFileDescriptor
	}

	switch p.socketType {
	case SocketDatagram:
		return p.receiveDatagram()
	default:
		return p.receiveStream()
	}
}

func encodeHeader(msg *Message) []byte {
	h := make([]byte, headerSize)
	binary.NativeEndian.PutUint64(h[0:8], uint64(len(msg.Payload)))
	binary.NativeEndian.PutUint64(h[8:16], uint64(len(msg.Handles)))
	binary.NativeEndian.PutUint64(h[16:24], uint64(msg.Destination))
	binary.NativeEndian.PutUint64(h[24:32], msg.Opcode)
	return h
}

func decodeHeader(h []byte) (payloadSize, handleCount uint64, destination PortId, opcode uint64) {
	payloadSize = binary.NativeEndian.Uint64(h[0:8])
	handleCount = binary.NativeEndian.Uint64(h[8:16])
	destination = PortId(binary.NativeEndian.Uint64(h[16:24]))
	opcode = binary.NativeEndian.Uint64(h[24:32])
	return
}

// sendDatagram copies header and body into a single buffer and sends it as
// one datagram, attaching any handles as ancillary data.
func (p *Port) sendDatagram(header []byte, msg *Message) error {
	buf := make([]byte, 0, len(header)+len(msg.Payload))
	buf = append(buf, header...)
	buf = append(buf, msg.Payload...)

	oob := rightsFor(msg.Handles)

	for {
		err := unix.Sendmsg(p.fd, buf, oob, nil, 0)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EBADF {
			return ErrBadFileDescriptor
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		return nil
	}
}

// receiveDatagram peeks the header to size the receive buffer, then reads
// the full datagram (header + body + ancillary data) in one call.
func (p *Port) receiveDatagram() (*Message, error) {
	peek := make([]byte, headerSize)
	for {
		n, _, _, _, err := unix.Recvmsg(p.fd, peek, nil, unix.MSG_PEEK)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EBADF {
			return nil, ErrBadFileDescriptor
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		if n == 0 {
			return nil, ErrIncompleteMessage
		}
		if n < headerSize {
			return nil, ErrIncompleteMessage
		}
		break
	}

	payloadSize, handleCount, destination, opcode := decodeHeader(peek)

	buf := make([]byte, headerSize+payloadSize)
	oob := make([]byte, unix.CmsgSpace(int(handleCount)*4))

	var n, oobn int
	for {
		var err error
		n, oobn, _, _, err = unix.Recvmsg(p.fd, buf, oob, 0)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EBADF {
			return nil, ErrBadFileDescriptor
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		break
	}
	if n < headerSize+int(payloadSize) {
		return nil, ErrIncompleteMessage
	}

	handles, err := parseRights(oob[:oobn])
	if err != nil {
		return nil, err
	}
	if len(handles) != int(handleCount) {
		return nil, ErrIncompleteMessage
	}

	return &Message{
		Destination: destination,
		Opcode:      opcode,
		Payload:     buf[headerSize : headerSize+payloadSize],
		Handles:     handles,
	}, nil
}

// sendStream writes the header first (carrying any handles as ancillary
// data), then drains the body in chunks of at most msgMaxSize.
func (p *Port) sendStream(header []byte, msg *Message) error {
	oob := rightsFor(msg.Handles)

	for {
		err := unix.Sendmsg(p.fd, header, oob, nil, 0)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EBADF {
			return ErrBadFileDescriptor
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		break
	}

	remaining := msg.Payload
	for len(remaining) > 0 {
		chunk := remaining
		if len(chunk) > p.msgMaxSize {
			chunk = chunk[:p.msgMaxSize]
		}

		n, err := unix.Write(p.fd, chunk)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EBADF {
			return ErrBadFileDescriptor
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		remaining = remaining[n:]
	}

	return nil
}

// receiveStream reads the header (plus any ancillary handles) in one
// recvmsg call, then drains the body in a loop until payload_size bytes
// have been read.
func (p *Port) receiveStream() (*Message, error) {
	header := make([]byte, headerSize)
	oob := make([]byte, unix.CmsgSpace(MaxHandlesPerMessage*4))

	var n, oobn int
	for {
		var err error
		n, oobn, _, _, err = unix.Recvmsg(p.fd, header, oob, 0)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EBADF {
			return nil, ErrBadFileDescriptor
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		break
	}
	if n == 0 {
		return nil, ErrIncompleteMessage
	}
	if n < headerSize {
		return nil, ErrIncompleteMessage
	}

	payloadSize, handleCount, destination, opcode := decodeHeader(header)

	handles, err := parseRights(oob[:oobn])
	if err != nil {
		return nil, err
	}
	if len(handles) != int(handleCount) {
		return nil, ErrIncompleteMessage
	}

	payload := make([]byte, payloadSize)
	read := uint64(0)
	for read < payloadSize {
		n, err := unix.Read(p.fd, payload[read:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EBADF {
			return nil, ErrBadFileDescriptor
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		if n == 0 {
			return nil, ErrIncompleteMessage
		}
		read += uint64(n)
	}

	return &Message{
		Destination: destination,
		Opcode:      opcode,
		Payload:     payload,
		Handles:     handles,
	}, nil
}

func rightsFor(handles []int) []byte {
	if len(handles) == 0 {
		return nil
	}
	return unix.UnixRights(handles...)
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("%w: parse control message: %v", ErrReadFailed, err)
	}

	var handles []int
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			return nil, fmt.Errorf("%w: parse rights: %v", ErrReadFailed, err)
		}
		handles = append(handles, fds...)
	}
	return handles, nil
}
