package framesock

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Wire format constants. A frame is
//
//	totalLength u32 | kind u32 | body
//
// big-endian, with totalLength = HeaderSize + len(body).
const (
	// HeaderSize is the fixed size of a frame header.
	HeaderSize = 8
	// MaxFrameSize is the default upper bound of totalLength (1 MiB).
	MaxFrameSize = 1024 * 1024
)

// FrameCodec converts messages to frames and accumulated bytes back to
// messages. It holds no per-connection state and is safe for concurrent use
// as long as its Serializer is.
type FrameCodec struct {
	serializer Serializer
	maxFrame   uint32
}

// NewFrameCodec returns a codec using serializer for frame bodies.
// A maxFrame outside [HeaderSize, MaxFrameSize] selects MaxFrameSize.
func NewFrameCodec(serializer Serializer, maxFrame int) *FrameCodec {
	if maxFrame < HeaderSize || maxFrame > MaxFrameSize {
		maxFrame = MaxFrameSize
	}
	return &FrameCodec{serializer: serializer, maxFrame: uint32(maxFrame)}
}

// MaxFrame returns the largest accepted totalLength.
func (c *FrameCodec) MaxFrame() int {
	return int(c.maxFrame)
}

// Encode serializes msg and wraps it in a frame.
func (c *FrameCodec) Encode(msg Message) ([]byte, error) {
	body, err := c.serializer.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "encode kind %d", msg.Kind)
	}
	if len(body) > int(c.maxFrame)-HeaderSize {
		return nil, errors.Wrapf(ErrOversizedFrame, "body of %d bytes", len(body))
	}
	return appendFrame(make([]byte, 0, HeaderSize+len(body)), msg.Kind, body), nil
}

func appendFrame(dst []byte, kind Kind, body []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(HeaderSize+len(body)))
	dst = binary.BigEndian.AppendUint32(dst, uint32(kind))
	return append(dst, body...)
}

// Decode extracts every complete frame from buf and returns the decoded
// messages in buffer order together with the number of bytes consumed.
//
// A trailing incomplete frame is left in buf, header included, for the next
// call. A header with an out-of-bounds length is skipped by exactly
// HeaderSize bytes; this is best-effort resynchronization and does not
// guarantee realignment with the next true frame boundary. Bodies the
// serializer rejects are dropped. Both kinds of failure are collected in the
// returned *DecodeError and never stop the scan.
func (c *FrameCodec) Decode(buf *Buffer) ([]Message, int, error) {
	var (
		msgs     []Message
		consumed int
		errs     DecodeError
	)

	for {
		length, kind, ok := buf.PeekHeader()
		if !ok {
			break
		}

		if length < HeaderSize || length > c.maxFrame {
			errs.add(&FrameHeaderError{Length: length, Max: c.maxFrame})
			buf.Consume(HeaderSize)
			consumed += HeaderSize
			continue
		}

		if buf.Len() < int(length) {
			break
		}

		body := make([]byte, length-HeaderSize)
		copy(body, buf.Bytes()[HeaderSize:length])
		buf.Consume(int(length))
		consumed += int(length)

		msg, err := c.serializer.Unmarshal(Kind(kind), body)
		if err != nil {
			errs.add(&PayloadError{Kind: Kind(kind), Err: err})
			continue
		}
		msg.Kind = Kind(kind)
		msgs = append(msgs, msg)
	}

	buf.Compact()
	return msgs, consumed, errs.orNil()
}
