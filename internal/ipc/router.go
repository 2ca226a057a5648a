//go:build linux

package ipc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/marmos91/protoipc/internal/logger"
	"github.com/marmos91/protoipc/internal/metrics"
)

// Router is the central forwarding node. It holds a set of
// Ports, polls them with epoll, and forwards each received Message to the
// port named by its Destination field, rewriting Destination to the
// source port's id so the receiver knows who to reply to. A Router
// exclusively owns every Port added to it. Its port table is guarded by mu,
// so ports may be added or removed from other goroutines while Loop runs.
type Router struct {
	mu         sync.Mutex
	epollFd    int
	ports      map[PortId]*Port
	idByFd     map[int]PortId
	connId     map[PortId]string
	nextPortId PortId
	metrics    *metrics.Metrics
}

// NewRouter creates a Router backed by a fresh epoll instance.
func NewRouter(m *metrics.Metrics) (*Router, error) {
	epollFd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("%w: epoll_create1: %v", ErrUnknown, err)
	}
	return &Router{
		epollFd: epollFd,
		ports:   make(map[PortId]*Port),
		idByFd:  make(map[int]PortId),
		connId:  make(map[PortId]string),
		metrics: m,
	}, nil
}

// AddPort assigns a new id to port, arms the poll set for readable events,
// and takes ownership of port (the Router closes it). The kernel's epoll
// event only carries the raw fd back on wakeup, so the Router keeps its
// own fd→PortId map to recover the id the same way the original's
// epoll_event.data.u64 field did.
func (r *Router) AddPort(port *Port) (PortId, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextPortId
	r.nextPortId++

	event := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(port.Fd()),
	}

	if err := unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_ADD, port.Fd(), &event); err != nil {
		return 0, fmt.Errorf("%w: epoll_ctl add: %v", ErrUnknown, err)
	}

	trace := uuid.NewString()
	r.ports[id] = port
	r.idByFd[port.Fd()] = id
	r.connId[id] = trace
	r.metrics.PortAdded()
	logger.Debug("router: port added", logger.TraceID(trace), logger.PortID(uint64(id)))
	return id, nil
}

// RemovePort disarms the poll set and closes the port. Returns false if id
// is unknown.
func (r *Router) RemovePort(id PortId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removePortLocked(id)
}

func (r *Router) removePortLocked(id PortId) bool {
	port, ok := r.ports[id]
	if !ok {
		return false
	}
	_ = unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_DEL, port.Fd(), nil)
	trace := r.connId[id]
	delete(r.ports, id)
	delete(r.idByFd, port.Fd())
	delete(r.connId, id)
	_ = port.Close()
	r.metrics.PortRemoved()
	logger.Debug("router: port removed", logger.TraceID(trace), logger.PortID(uint64(id)))
	return true
}

// Close tears down the router's epoll instance and all owned ports.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.ports {
		r.removePortLocked(id)
	}
	return unix.Close(r.epollFd)
}

// Loop blocks forever, forwarding messages between ports. It returns only
// when epoll_wait fails, with an error wrapping ErrPollError. A port whose
// receive fails is removed and the loop continues; message-level problems
// (unknown destination, failed forward) cause the message to be dropped
// silently — senders cannot be trusted to target only live ports, and an
// unknown destination is not a router fault.
func (r *Router) Loop() error {
	events := make([]unix.EpollEvent, 64)

	for {
		n, err := unix.EpollWait(r.epollFd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: epoll_wait: %v", ErrPollError, err)
		}

		// Service every port reported ready by this batch before
		// blocking again.
		for i := 0; i < n; i++ {
			r.forwardOne(int(events[i].Fd))
		}
	}
}

func (r *Router) forwardOne(fd int) {
	r.mu.Lock()
	srcId, ok := r.idByFd[fd]
	var src *Port
	var trace string
	if ok {
		src = r.ports[srcId]
		trace = r.connId[srcId]
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	msg, err := src.Receive()
	if err != nil {
		logger.Warn("router: receive failed, dropping source port",
			logger.TraceID(trace), logger.PortID(uint64(srcId)), logger.Err(err))
		r.RemovePort(srcId)
		return
	}
	r.metrics.BytesReceived(len(msg.Payload))

	dstId := msg.Destination
	msg.Destination = srcId

	r.mu.Lock()
	dst, ok := r.ports[dstId]
	r.mu.Unlock()
	if !ok {
		r.metrics.MessageDropped()
		closeHandles(msg.Handles)
		logger.Debug("router: unknown destination, dropping message",
			logger.TraceID(trace), logger.PortID(uint64(srcId)), logger.RemotePort(uint64(dstId)))
		return
	}

	r.metrics.HandlesSent(len(msg.Handles))
	if err := dst.Send(msg); err != nil {
		r.metrics.MessageDropped()
		closeHandles(msg.Handles)
		logger.Warn("router: forward failed, dropping message",
			logger.TraceID(trace), logger.PortID(uint64(srcId)), logger.RemotePort(uint64(dstId)), logger.Err(err))
		return
	}

	r.metrics.MessageForwarded()
	r.metrics.BytesSent(len(msg.Payload))
}

// closeHandles releases fds the router received but could not forward —
// Port.Send only closes them on the success path, so a dropped message's
// handles would otherwise leak.
func closeHandles(handles []int) {
	for _, h := range handles {
		_ = unix.Close(h)
	}
}
