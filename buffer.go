package framesock

import "encoding/binary"

// Buffer accumulates inbound bytes of one connection until they form
// complete frames. Bytes that are not consumed stay in the buffer, in order,
// across any number of Append and Compact calls.
//
// A Buffer is not safe for concurrent use; the reactor confines it to the
// loop goroutine.
type Buffer struct {
	buf []byte
	off int // read position; buf[off:] is unconsumed
}

// NewBuffer returns an empty buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Append copies p to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.off
}

// Bytes returns the unconsumed bytes. The slice aliases the buffer and is
// only valid until the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.off:]
}

// PeekHeader reads the frame header at the read position without consuming it.
// ok is false when fewer than HeaderSize bytes are available.
func (b *Buffer) PeekHeader() (length uint32, kind uint32, ok bool) {
	if b.Len() < HeaderSize {
		return 0, 0, false
	}
	p := b.buf[b.off:]
	return binary.BigEndian.Uint32(p[0:4]), binary.BigEndian.Uint32(p[4:8]), true
}

// Consume discards n unconsumed bytes from the front.
func (b *Buffer) Consume(n int) {
	if n > b.Len() {
		n = b.Len()
	}
	b.off += n
}

// Compact moves the unconsumed bytes to the front of the backing array.
func (b *Buffer) Compact() {
	if b.off == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.off:])
	b.buf = b.buf[:n]
	b.off = 0
}

// Reset drops all bytes and releases the backing array.
func (b *Buffer) Reset() {
	b.buf = nil
	b.off = 0
}
