package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/protoipc/internal/ipc"
	"github.com/marmos91/protoipc/internal/metrics"
)

// PendingMessage is an envelope that arrived on a Channel's receive path
// but did not match an in-flight SendRequest, queued for FIFO dispatch by
// Loop.
type PendingMessage struct {
	SourcePort ipc.PortId
	Msg        *Message
}

// Channel multiplexes bound objects over a single Port. Binding, sending,
// and receiving are only ever driven from the receive path — either a
// blocking SendRequest or the background Loop — never both at once; a
// Channel is not safe for concurrent use from multiple goroutines beyond
// that single receive-path invariant.
type Channel struct {
	mu        sync.Mutex
	port      *ipc.Port
	portId    ipc.PortId
	nextId    ObjectId
	allocated map[ObjectId]struct{}
	receivers map[ObjectId]Receiver
	queue     []PendingMessage
	metrics   *metrics.Metrics
}

// NewChannel wraps a Port already registered with a Router under portId.
// m may be nil, in which case metrics collection is a no-op.
func NewChannel(port *ipc.Port, portId ipc.PortId, m *metrics.Metrics) *Channel {
	return &Channel{
		port:      port,
		portId:    portId,
		allocated: make(map[ObjectId]struct{}),
		receivers: make(map[ObjectId]Receiver),
		metrics:   m,
	}
}

// PortId returns this channel's own port id, as known to the router.
func (c *Channel) PortId() ipc.PortId {
	return c.portId
}

func (c *Channel) allocateIdLocked() ObjectId {
	id := c.nextId
	for {
		if _, used := c.allocated[id]; !used {
			break
		}
		id++
	}
	c.nextId = id + 1
	c.allocated[id] = struct{}{}
	return id
}

// Bind allocates the next free ObjectId and registers receiver to handle
// messages addressed to it.
func (c *Channel) Bind(receiver Receiver) ObjectId {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.allocateIdLocked()
	c.receivers[id] = receiver
	c.metrics.ObjectBound()
	return id
}

// BindStatic registers receiver under a caller-chosen ObjectId, for
// well-known objects both peers agree on out of band.
func (c *Channel) BindStatic(id ObjectId, receiver Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.allocated[id] = struct{}{}
	c.receivers[id] = receiver
	c.metrics.ObjectBound()
}

// Unbind removes a previously bound object, after which further messages
// addressed to it are treated as unknown-object protocol errors.
func (c *Channel) Unbind(id ObjectId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.receivers[id]; !ok {
		return
	}
	delete(c.receivers, id)
	c.metrics.ObjectUnbound()
}

// Connect builds a Proxy addressing an object on a remote port, optionally
// binding a local receiver (for callbacks the remote side initiates back
// toward the proxy) under its own ObjectId.
func (c *Channel) Connect(remotePort ipc.PortId, remoteObjectId ObjectId, receiver Receiver) *Proxy {
	var localId ObjectId
	if receiver != nil {
		localId = c.Bind(receiver)
	}
	return &Proxy{
		channel:        c,
		localId:        localId,
		remotePort:     remotePort,
		remoteObjectId: remoteObjectId,
	}
}

func (c *Channel) send(destPort ipc.PortId, msg *Message) error {
	transportMsg := &ipc.Message{
		Destination: destPort,
		Payload:     msg.Encode(),
		Handles:     msg.Handles,
	}
	if err := c.port.Send(transportMsg); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// SendMessage delivers msg to destPort without waiting for a reply.
func (c *Channel) SendMessage(destPort ipc.PortId, msg *Message) error {
	return c.send(destPort, msg)
}

// receiveEnvelope reads one transport Message off the port and decodes its
// RpcMessage envelope. The router rewrites a forwarded Message's
// destination to the originating port id, so that field doubles as the
// envelope's source port on the receiving side.
func (c *Channel) receiveEnvelope() (*Message, ipc.PortId, error) {
	transportMsg, err := c.port.Receive()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	envelope, err := DecodeMessage(transportMsg.Payload)
	if err != nil {
		return nil, 0, err
	}
	envelope.Handles = transportMsg.Handles

	return envelope, transportMsg.Destination, nil
}

// SendRequest sends msg to destPort and blocks on this channel's own
// receive path until a matching reply arrives: one whose source port is
// remotePort, whose opcode equals msg.Opcode, and whose envelope
// destination equals msg.Destination (the callee echoes the object it was
// addressed at back in its reply). Every non-matching envelope received
// in the meantime is appended to the FIFO queue Loop later drains.
// Returns false on any transport or protocol failure.
func (c *Channel) SendRequest(destPort ipc.PortId, msg *Message) (*Message, bool) {
	start := time.Now()

	if err := c.send(destPort, msg); err != nil {
		return nil, false
	}

	for {
		envelope, srcPort, err := c.receiveEnvelope()
		if err != nil {
			return nil, false
		}

		if srcPort == destPort && envelope.Opcode == msg.Opcode && envelope.Destination == msg.Destination {
			c.metrics.ObserveRequest(time.Since(start))
			return envelope, true
		}

		c.mu.Lock()
		c.queue = append(c.queue, PendingMessage{SourcePort: srcPort, Msg: envelope})
		c.mu.Unlock()
	}
}

func (c *Channel) dispatch(pm PendingMessage) error {
	c.mu.Lock()
	receiver, ok := c.receivers[pm.Msg.Destination]
	c.mu.Unlock()
	if !ok {
		c.metrics.DispatchError("unknown_object")
		return fmt.Errorf("%w: object %d", ErrUnknownObject, pm.Msg.Destination)
	}
	if err := receiver.OnMessage(c, pm.Msg.Destination, pm.SourcePort, pm.Msg); err != nil {
		c.metrics.DispatchError("receiver")
		return err
	}
	return nil
}

// Loop runs this channel's background dispatch: receive one envelope,
// queue it, then drain the FIFO queue in full — including anything
// SendRequest calls queued while waiting on a reply — before receiving
// again. Returns on the first transport or protocol failure, which is
// fatal to the channel.
func (c *Channel) Loop() error {
	for {
		envelope, srcPort, err := c.receiveEnvelope()
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.queue = append(c.queue, PendingMessage{SourcePort: srcPort, Msg: envelope})
		queue := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, pm := range queue {
			if err := c.dispatch(pm); err != nil {
				return err
			}
		}
	}
}
