//go:build unix

package ipc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listener accepts incoming stream-socket connections on a Unix listening
// path and wraps each as a Port, for a Router daemon that clients connect
// to rather than one that only spins up connected pairs in-process.
type Listener struct {
	ln *net.UnixListener
}

// Listen binds a Unix stream socket at path. Any stale socket file left
// behind by a prior unclean shutdown is removed first.
func Listen(path string) (*Listener, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", ErrUnknown, path, err)
	}

	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %q: %v", ErrUnknown, path, err)
	}

	return &Listener{ln: ln}, nil
}

// Accept blocks for the next incoming connection and wraps it as a
// stream-socket Port. The caller owns the returned Port and is
// responsible for registering it with a Router.
func (l *Listener) Accept(opts ...Option) (*Port, error) {
	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, fmt.Errorf("%w: accept: %v", ErrUnknown, err)
	}

	file, err := conn.File()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: extract fd: %v", ErrUnknown, err)
	}
	// conn.File() already hands back a dup of the connection's fd, but
	// closing *os.File (directly or via its GC finalizer) would close
	// that same fd out from under the Port. Dup it once more so the
	// Port's fd survives independently of file's lifetime, then discard
	// both the file and the original conn.
	fd, err := unix.Dup(int(file.Fd()))
	_ = file.Close()
	_ = conn.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: dup fd: %v", ErrUnknown, err)
	}

	return NewPort(fd, SocketStream, opts...), nil
}

// Close stops accepting new connections and removes the socket file.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Addr returns the bound socket path.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}
