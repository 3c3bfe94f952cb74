package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderSize is the fixed overhead of a length-prefixed frame: a
// single big-endian uint32 byte count for the payload that follows.
// Mirrors the header-then-payload framing the teacher's transport layer
// uses for its message envelopes.
const frameHeaderSize = 4

// maxFrame bounds a single frame to guard against a corrupt or hostile
// length prefix causing an unbounded allocation.
const maxFrame = 64 * 1024 * 1024

// WriteFrame writes a length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrame {
		return fmt.Errorf("codec: frame of %d bytes exceeds %d byte limit", len(payload), maxFrame)
	}
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("codec: write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("codec: write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r, blocking until the
// whole frame has arrived.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return nil, fmt.Errorf("codec: frame length %d exceeds %d byte limit", n, maxFrame)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("codec: read frame payload: %w", err)
	}
	return buf, nil
}

// Unpacker accumulates arbitrary byte chunks (as delivered by a socket's
// receive callback, which may split or coalesce frames in any way) and
// yields complete length-prefixed frames as they become available. It is
// the streaming counterpart to WriteFrame/ReadFrame for transports that
// hand the caller raw chunks instead of an io.Reader.
type Unpacker struct {
	buf []byte
}

// Feed appends a newly received chunk to the internal buffer.
func (u *Unpacker) Feed(chunk []byte) {
	u.buf = append(u.buf, chunk...)
}

// Next extracts the next complete frame, if one is fully buffered. It
// returns ok=false when more data is needed.
func (u *Unpacker) Next() (frame []byte, ok bool, err error) {
	if len(u.buf) < frameHeaderSize {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(u.buf[:frameHeaderSize])
	if n > maxFrame {
		return nil, false, fmt.Errorf("codec: frame length %d exceeds %d byte limit", n, maxFrame)
	}
	total := frameHeaderSize + int(n)
	if len(u.buf) < total {
		return nil, false, nil
	}
	frame = make([]byte, n)
	copy(frame, u.buf[frameHeaderSize:total])
	remaining := len(u.buf) - total
	copy(u.buf, u.buf[total:])
	u.buf = u.buf[:remaining]
	return frame, true, nil
}
