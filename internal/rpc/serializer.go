package rpc

import "encoding/binary"

func putUint64(b []byte, v uint64) { binary.NativeEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.NativeEndian.Uint64(b) }

// Serializer builds the canonical binary encoding of argument and return
// values for generated stubs. It accumulates a growing
// byte buffer and a parallel handle list; GetPayload/GetHandles move the
// buffers out and reset the Serializer for reuse.
type Serializer struct {
	buf     []byte
	handles []int
}

// NewSerializer returns an empty Serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// GetPayload returns the accumulated bytes and resets the buffer.
func (s *Serializer) GetPayload() []byte {
	out := s.buf
	s.buf = nil
	return out
}

// GetHandles returns the accumulated handles and resets the list.
func (s *Serializer) GetHandles() []int {
	out := s.handles
	s.handles = nil
	return out
}

// PutBool encodes a boolean as one byte, 0 or 1.
func (s *Serializer) PutBool(v bool) {
	if v {
		s.buf = append(s.buf, 1)
	} else {
		s.buf = append(s.buf, 0)
	}
}

// PutUint8 encodes an 8-bit unsigned integer.
func (s *Serializer) PutUint8(v uint8) {
	s.buf = append(s.buf, v)
}

// PutInt8 encodes an 8-bit signed integer (two's complement).
func (s *Serializer) PutInt8(v int8) {
	s.PutUint8(uint8(v))
}

// PutUint16 encodes a 16-bit unsigned integer, native byte order.
func (s *Serializer) PutUint16(v uint16) {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

// PutInt16 encodes a 16-bit signed integer, native byte order.
func (s *Serializer) PutInt16(v int16) {
	s.PutUint16(uint16(v))
}

// PutUint32 encodes a 32-bit unsigned integer, native byte order.
func (s *Serializer) PutUint32(v uint32) {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

// PutInt32 encodes a 32-bit signed integer, native byte order.
func (s *Serializer) PutInt32(v int32) {
	s.PutUint32(uint32(v))
}

// PutUint64 encodes a 64-bit unsigned integer, native byte order.
func (s *Serializer) PutUint64(v uint64) {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

// PutInt64 encodes a 64-bit signed integer, native byte order.
func (s *Serializer) PutInt64(v int64) {
	s.PutUint64(uint64(v))
}

// PutString encodes a size-prefixed UTF-8 string (not null-terminated).
func (s *Serializer) PutString(v string) {
	s.PutUint64(uint64(len(v)))
	s.buf = append(s.buf, v...)
}

// PutBytes encodes a size-prefixed opaque byte sequence.
func (s *Serializer) PutBytes(v []byte) {
	s.PutUint64(uint64(len(v)))
	s.buf = append(s.buf, v...)
}

// PutHandle appends a handle to the message's handle list. Handles do not
// appear in the byte stream; the consumer reads the next handle in order.
func (s *Serializer) PutHandle(h int) {
	s.handles = append(s.handles, h)
}

// PutSequence encodes a size-prefixed sequence of T using encode to
// serialize each element.
func PutSequence[T any](s *Serializer, seq []T, encode func(*Serializer, T)) {
	s.PutUint64(uint64(len(seq)))
	for _, v := range seq {
		encode(s, v)
	}
}

// PutOptional encodes an Optional[T]: a 1-byte presence flag, followed by
// the encoding of T if present.
func PutOptional[T any](s *Serializer, v *T, encode func(*Serializer, T)) {
	if v == nil {
		s.PutBool(false)
		return
	}
	s.PutBool(true)
	encode(s, *v)
}
