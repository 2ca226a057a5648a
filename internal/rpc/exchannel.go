package rpc

import (
	"fmt"
	"sync"

	"github.com/marmos91/protoipc/internal/ipc"
)

// requestKey identifies one in-flight SendRequest well enough to route its
// reply: the same (remote port, opcode, destination object) triple the
// base Channel match rule uses. Two concurrent calls sharing a
// key still serialize — ExCall documents that limitation — but distinct
// keys proceed fully in parallel.
type requestKey struct {
	remotePort  ipc.PortId
	opcode      uint64
	destination ObjectId
}

// ExChannel layers concurrent outstanding requests on top of Channel's
// single in-line SendRequest, without changing the base wire contract.
// A single pump goroutine owns the channel's receive path; ExCall
// registers a waiter and lets the pump deliver its reply, instead of
// blocking in line and monopolizing the receive path itself.
type ExChannel struct {
	channel *Channel

	mu      sync.Mutex
	pending map[requestKey]chan *Message
	pumpErr error
	done    chan struct{}
}

// NewExChannel wraps channel and starts its dedicated pump goroutine. The
// caller must not also call channel.Loop or channel.SendRequest directly;
// ExChannel owns the receive path from here on.
func NewExChannel(channel *Channel) *ExChannel {
	ex := &ExChannel{
		channel: channel,
		pending: make(map[requestKey]chan *Message),
		done:    make(chan struct{}),
	}
	go ex.pump()
	return ex
}

// PortId returns the underlying channel's port id.
func (ex *ExChannel) PortId() ipc.PortId {
	return ex.channel.PortId()
}

// Bind delegates to the underlying channel.
func (ex *ExChannel) Bind(receiver Receiver) ObjectId {
	return ex.channel.Bind(receiver)
}

// BindStatic delegates to the underlying channel.
func (ex *ExChannel) BindStatic(id ObjectId, receiver Receiver) {
	ex.channel.BindStatic(id, receiver)
}

// SendMessage delegates to the underlying channel's one-shot send.
func (ex *ExChannel) SendMessage(destPort ipc.PortId, msg *Message) error {
	return ex.channel.SendMessage(destPort, msg)
}

// Err returns the error that stopped the pump goroutine, if any. Nil
// while the pump is still running.
func (ex *ExChannel) Err() error {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.pumpErr
}

// Done is closed when the pump goroutine stops, after which ExCall always
// fails immediately.
func (ex *ExChannel) Done() <-chan struct{} {
	return ex.done
}

// ExCall sends destPort a request and waits for its reply without
// blocking any other concurrently outstanding ExCall on a different
// (remote port, opcode, destination) key. Returns false on transport
// failure, protocol failure, or if the pump has already stopped.
func (ex *ExChannel) ExCall(destPort ipc.PortId, msg *Message) (*Message, bool) {
	key := requestKey{remotePort: destPort, opcode: msg.Opcode, destination: msg.Destination}
	wait := make(chan *Message, 1)

	ex.mu.Lock()
	if ex.pumpErr != nil {
		ex.mu.Unlock()
		return nil, false
	}
	ex.pending[key] = wait
	ex.mu.Unlock()

	if err := ex.channel.SendMessage(destPort, msg); err != nil {
		ex.mu.Lock()
		delete(ex.pending, key)
		ex.mu.Unlock()
		return nil, false
	}

	select {
	case reply := <-wait:
		return reply, true
	case <-ex.done:
		return nil, false
	}
}

func (ex *ExChannel) pump() {
	for {
		envelope, srcPort, err := ex.channel.receiveEnvelope()
		if err != nil {
			ex.stop(err)
			return
		}

		key := requestKey{remotePort: srcPort, opcode: envelope.Opcode, destination: envelope.Destination}
		ex.mu.Lock()
		wait, isReply := ex.pending[key]
		if isReply {
			delete(ex.pending, key)
		}
		ex.mu.Unlock()

		if isReply {
			wait <- envelope
			continue
		}

		if err := ex.channel.dispatch(PendingMessage{SourcePort: srcPort, Msg: envelope}); err != nil {
			ex.stop(err)
			return
		}
	}
}

func (ex *ExChannel) stop(err error) {
	ex.mu.Lock()
	if ex.pumpErr != nil {
		ex.mu.Unlock()
		return
	}
	ex.pumpErr = fmt.Errorf("exchannel: pump stopped: %w", err)
	ex.mu.Unlock()
	close(ex.done)
}
