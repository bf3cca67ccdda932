package http

import (
	"context"
	"errors"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICProtocol is the ALPN token of HTTP/1.1 framed requests over QUIC
// streams, one request per stream.
const QUICProtocol = "loam/1"

// ListenAndServeQUIC serves QUIC on the UDP address addr. TLSConfig must
// carry certificates.
func (s *Server) ListenAndServeQUIC(ctx context.Context, addr string) error {
	config, err := s.tlsConfig("", "")
	if err != nil {
		return err
	}
	if len(config.NextProtos) == 0 {
		config.NextProtos = []string{QUICProtocol}
	}

	listener, err := quic.ListenAddr(addr, config, &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return err
	}

	return s.ServeQUIC(ctx, listener)
}

// ServeQUIC accepts QUIC connections until the listener closes. Every
// stream of every connection is served by its own worker.
func (s *Server) ServeQUIC(ctx context.Context, listener *quic.Listener) error {
	if !s.track(listener) {
		listener.Close()
		return ErrServerClosed
	}
	defer s.untrack(listener)

	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()

	workerCtx := context.WithoutCancel(ctx)

	pacing := newAcceptBackOff()

	s.logger().Info("accepting quic connections", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if s.shuttingDown() || ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return ErrServerClosed
			}

			delay := pacing.NextBackOff()
			s.logger().Warn("quic accept failed", "error", err, "retry_in", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ErrServerClosed
			}
			continue
		}
		pacing.Reset()

		go s.serveQUICConn(workerCtx, conn)
	}
}

func (s *Server) serveQUICConn(ctx context.Context, conn quic.Connection) {
	remote := conn.RemoteAddr().String()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			s.logger().Debug("quic connection ended", "remote", remote, "error", err)
			return
		}

		s.spawn(ctx, func(context.Context) (*Conn, error) {
			return NewConn(quicStream{stream}, remote), nil
		}, quicStream{stream})
	}
}

// quicStream releases both directions of the stream on Close.
type quicStream struct {
	quic.Stream
}

func (s quicStream) Close() error {
	s.Stream.CancelRead(0)
	return s.Stream.Close()
}
