package stream

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/multierr"
)

// Conn is a duplex endpoint over one transport: writes are signed by an
// Encoder and reads are authenticated by a Reader. The two halves share no
// state, but the first error on either aborts both.
type Conn struct {
	rw  io.ReadWriter
	enc *Encoder
	r   *Reader

	mu     sync.Mutex
	err    error
	closed bool
}

func NewConn(rw io.ReadWriter, peer PeerVerifier, cfg Config) (*Conn, error) {
	enc, err := NewEncoder(rw, cfg)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(rw, peer, cfg)
	if err != nil {
		return nil, err
	}
	return &Conn{rw: rw, enc: enc, r: r}, nil
}

func (c *Conn) Read(p []byte) (int, error) {
	if err := c.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, c.fail(err)
	}
	return n, err
}

func (c *Conn) Write(p []byte) (int, error) {
	if err := c.Err(); err != nil {
		return 0, err
	}
	n, err := c.enc.Write(p)
	if err != nil {
		return n, c.fail(err)
	}
	return n, nil
}

// CloseWrite flushes the final frame and, when the transport supports it,
// half-closes the write side so the peer sees end of stream.
func (c *Conn) CloseWrite() error {
	if err := c.Err(); err != nil {
		return err
	}
	if err := c.enc.Close(); err != nil {
		return c.fail(err)
	}
	if hc, ok := c.rw.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return nil
}

// Close flushes the encoder, discards unread input and closes the
// transport if it is an io.Closer.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	failed := c.err != nil
	c.mu.Unlock()

	var err error
	if !failed {
		err = multierr.Append(err, c.enc.Close())
	}
	c.r.Abort()
	if closer, ok := c.rw.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}

// Err returns the first error seen on either half.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) PublicKey() []byte {
	return c.enc.PublicKey()
}

// PeerKey returns the approved peer key, or nil before approval.
func (c *Conn) PeerKey() []byte {
	return c.r.Decoder().PeerKey()
}

func (c *Conn) fail(err error) error {
	c.mu.Lock()
	if c.err != nil {
		err = c.err
		c.mu.Unlock()
		return err
	}
	c.err = err
	c.mu.Unlock()
	c.enc.Abort()
	c.r.Abort()
	return err
}
