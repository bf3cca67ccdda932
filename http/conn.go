package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

var (
	ErrBadConn   = errors.New("http: connection is in a bad state")
	ErrHandshake = errors.New("http: tls handshake failed")
)

// Conn is one accepted transport endpoint: a plain socket, a TLS session
// layered over one, or a QUIC stream. It has no framing knowledge.
type Conn struct {
	rwc    io.ReadWriteCloser
	remote string

	bad bool
	eof bool

	closeOnce sync.Once
	closeErr  error
}

func NewConn(rwc io.ReadWriteCloser, remote string) *Conn {
	return &Conn{
		rwc:    rwc,
		remote: remote,
	}
}

// NewTLSConn performs the server side handshake over raw. On failure the
// socket is closed and the connection must be discarded.
func NewTLSConn(ctx context.Context, raw net.Conn, config *tls.Config) (*Conn, error) {
	tlsConn := tls.Server(raw, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	return NewConn(tlsConn, raw.RemoteAddr().String()), nil
}

// Receive blocks until at least one byte is available, the peer closes the
// stream, or an error occurs.
func (c *Conn) Receive(max int) ([]byte, error) {
	if c.bad {
		return nil, ErrBadConn
	}
	if c.eof {
		return nil, io.EOF
	}

	buf := make([]byte, max)
	for {
		n, err := c.rwc.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.eof = true
			} else {
				c.bad = true
			}

			if n > 0 {
				return buf[:n], nil
			}
			return nil, err
		}

		if n > 0 {
			return buf[:n], nil
		}
	}
}

// Send blocks until p is fully written or an error occurs.
func (c *Conn) Send(p []byte) error {
	if c.bad {
		return ErrBadConn
	}

	for len(p) > 0 {
		n, err := c.rwc.Write(p)
		if err != nil {
			c.bad = true
			return err
		}
		p = p[n:]
	}

	return nil
}

// Bad is sticky once any I/O error occurred.
func (c *Conn) Bad() bool {
	return c.bad
}

func (c *Conn) EOF() bool {
	return c.eof
}

func (c *Conn) RemoteAddr() string {
	return c.remote
}

// Close releases the endpoint; TLS sessions send close_notify first. Safe to
// call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}
