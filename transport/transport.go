// Package transport implements the length-delimited, ordered, reliable
// request/response adapter of spec.md §4.7, generalized from the teacher's
// HTTP-body blob streaming (notary.go's getBlob/setBlob, which count bytes
// through io.TeeReader) to a raw framed stream over net.Conn.
package transport

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"

	"github.com/summitto/upsi/internal/errs"
)

// DefaultMaxMessageBytes is the configurable size ceiling; spec.md §4.7
// requires at least 1 GiB to be accepted.
const DefaultMaxMessageBytes = 1 << 30

// Conn wraps a net.Conn with length-delimited framing: each message is a
// 4-byte big-endian length prefix followed by that many bytes.
type Conn struct {
	raw           net.Conn
	r             *bufio.Reader
	maxMessageLen uint32
}

// New wraps conn with the default size ceiling.
func New(conn net.Conn) *Conn {
	return &Conn{raw: conn, r: bufio.NewReader(conn), maxMessageLen: DefaultMaxMessageBytes}
}

// WithMaxMessageBytes overrides the size ceiling (must be ≥ 1 GiB per
// spec.md §4.7, enforced by the caller providing a sane value here).
func (c *Conn) WithMaxMessageBytes(n uint32) *Conn {
	c.maxMessageLen = n
	return c
}

// Send writes one length-delimited message.
func (c *Conn) Send(msg []byte) error {
	if uint32(len(msg)) > c.maxMessageLen {
		return errs.Newf(errs.Transport, "transport: message of %d bytes exceeds ceiling %d", len(msg), c.maxMessageLen)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(msg)))
	if _, err := c.raw.Write(lenBuf[:]); err != nil {
		return errs.Wrap(errs.Transport, err)
	}
	if len(msg) == 0 {
		return nil
	}
	if _, err := c.raw.Write(msg); err != nil {
		return errs.Wrap(errs.Transport, err)
	}
	return nil
}

// Recv reads one length-delimited message, blocking until a full message or
// EOF/error arrives (spec.md §4.7 "Suspension points").
func (c *Conn) Recv() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, errs.Wrap(errs.Transport, io.EOF)
		}
		return nil, errs.Wrap(errs.Transport, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > c.maxMessageLen {
		return nil, errs.Newf(errs.Transport, "transport: incoming message of %d bytes exceeds ceiling %d", n, c.maxMessageLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, errs.Wrap(errs.Transport, err)
	}
	return buf, nil
}

// Request sends msg and blocks for exactly one response, the client-role
// contract of spec.md §4.7 ("exactly one response per request").
func (c *Conn) Request(msg []byte) ([]byte, error) {
	if err := c.Send(msg); err != nil {
		return nil, err
	}
	return c.Recv()
}

// Close closes the underlying connection; a client closing its process
// closes the stream, observed by the server as EOF (spec.md §4.7
// "Cancellation").
func (c *Conn) Close() error { return c.raw.Close() }
