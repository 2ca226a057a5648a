package rpc

import "github.com/marmos91/protoipc/internal/ipc"

// Receiver handles envelopes addressed to a bound object. Generated stubs
// implement it to decode a call's Opcode and argument payload, invoke the
// corresponding method, and reply with SendMessage when the call expects
// one.
type Receiver interface {
	OnMessage(channel *Channel, selfId ObjectId, sourcePort ipc.PortId, msg *Message) error
}

// Proxy addresses a single remote object: the (port, object) pair a
// generated stub calls through, plus the channel it rides on and this
// side's own object id for replies the remote side addresses back to.
// Generated stubs embed a Proxy and add typed call methods that build a
// Message and invoke SendMessage/SendRequest.
type Proxy struct {
	channel        *Channel
	localId        ObjectId
	remotePort     ipc.PortId
	remoteObjectId ObjectId
}

// Channel returns the channel this proxy sends and receives over.
func (p *Proxy) Channel() *Channel {
	return p.channel
}

// LocalId returns the object id this proxy is bound under for replies
// and callbacks, or zero if it was constructed without a receiver.
func (p *Proxy) LocalId() ObjectId {
	return p.localId
}

// RemotePort returns the port hosting the object this proxy addresses.
func (p *Proxy) RemotePort() ipc.PortId {
	return p.remotePort
}

// RemoteObjectId returns the object id this proxy addresses.
func (p *Proxy) RemoteObjectId() ObjectId {
	return p.remoteObjectId
}

// Send delivers a one-shot message to the remote object, stamping the
// envelope's source/destination from this proxy's identity.
func (p *Proxy) Send(opcode uint64, payload []byte, handles []int) error {
	return p.channel.SendMessage(p.remotePort, &Message{
		Source:      p.localId,
		Destination: p.remoteObjectId,
		Opcode:      opcode,
		Payload:     payload,
		Handles:     handles,
	})
}

// Call sends a request to the remote object and blocks for its reply, as
// Channel.SendRequest does.
func (p *Proxy) Call(opcode uint64, payload []byte, handles []int) (*Message, bool) {
	return p.channel.SendRequest(p.remotePort, &Message{
		Source:      p.localId,
		Destination: p.remoteObjectId,
		Opcode:      opcode,
		Payload:     payload,
		Handles:     handles,
	})
}
