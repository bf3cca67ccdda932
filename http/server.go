package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrServerClosed = errors.New("http: server closed")
	ErrNoTLSConfig  = errors.New("http: tls config without certificates")
)

// Server accepts connections and hands each one to its own Worker. There
// is no admission limit: every accepted connection gets a goroutine.
type Server struct {
	Router    *Router
	TLSConfig *tls.Config
	// ReusePort sets SO_REUSEPORT on listeners opened by the ListenAndServe
	// family.
	ReusePort bool
	Logger    *slog.Logger

	workers *xsync.Counter
	inst    instruments

	mu        sync.Mutex
	wg        sync.WaitGroup
	closed    bool
	listeners map[io.Closer]struct{}
}

func NewServer(router *Router) *Server {
	return &Server{
		Router:    router,
		workers:   xsync.NewCounter(),
		inst:      newInstruments(),
		listeners: make(map[io.Closer]struct{}),
	}
}

// ActiveWorkers reports the workers currently owning a connection.
func (s *Server) ActiveWorkers() int64 {
	return s.workers.Value()
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := s.listen(ctx, addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listener)
}

// ListenAndServeTLS serves HTTPS on addr. The key pair files may be empty
// when TLSConfig already carries certificates.
func (s *Server) ListenAndServeTLS(ctx context.Context, addr, certFile, keyFile string) error {
	config, err := s.tlsConfig(certFile, keyFile)
	if err != nil {
		return err
	}

	listener, err := s.listen(ctx, addr)
	if err != nil {
		return err
	}

	return s.serve(ctx, listener, config)
}

// Serve accepts plain connections on listener until it is closed, ctx ends
// or the server shuts down. It always returns a non-nil error.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	return s.serve(ctx, listener, nil)
}

func (s *Server) ServeTLS(ctx context.Context, listener net.Listener) error {
	config, err := s.tlsConfig("", "")
	if err != nil {
		listener.Close()
		return err
	}

	return s.serve(ctx, listener, config)
}

// ServeConn runs one worker for conn on the calling goroutine.
func (s *Server) ServeConn(conn net.Conn) {
	ctx := context.Background()
	if !s.enter(ctx) {
		conn.Close()
		return
	}
	defer s.leave(ctx)

	s.worker(NewConn(conn, remoteAddr(conn))).Run(ctx)
}

func (s *Server) serve(ctx context.Context, listener net.Listener, config *tls.Config) error {
	if !s.track(listener) {
		listener.Close()
		return ErrServerClosed
	}
	defer s.untrack(listener)

	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()

	// Workers outlive the accept loop; only Shutdown waits for them.
	workerCtx := context.WithoutCancel(ctx)

	pacing := newAcceptBackOff()

	s.logger().Info("accepting connections", "addr", listener.Addr().String(), "tls", config != nil)

	for {
		raw, err := listener.Accept()
		if err != nil {
			if s.shuttingDown() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}

			delay := pacing.NextBackOff()
			s.logger().Warn("accept failed", "addr", listener.Addr().String(), "error", err, "retry_in", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ErrServerClosed
			}
			continue
		}
		pacing.Reset()

		s.spawn(workerCtx, func(ctx context.Context) (*Conn, error) {
			if config == nil {
				return NewConn(raw, remoteAddr(raw)), nil
			}
			// The handshake runs on the worker so a slow client cannot stall
			// the acceptor.
			return NewTLSConn(ctx, raw, config)
		}, raw)
	}
}

func (s *Server) spawn(ctx context.Context, open func(context.Context) (*Conn, error), raw io.Closer) {
	if !s.enter(ctx) {
		raw.Close()
		return
	}

	go func() {
		defer s.leave(ctx)

		conn, err := open(ctx)
		if err != nil {
			s.logger().Warn("opening connection failed", "error", err)
			return
		}

		s.worker(conn).Run(ctx)
	}()
}

func (s *Server) worker(conn *Conn) *Worker {
	return &Worker{
		conn:   conn,
		router: s.Router,
		logger: s.logger(),
		inst:   &s.inst,
	}
}

// enter registers a live worker unless the server is shutting down.
func (s *Server) enter(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.wg.Add(1)
	s.workers.Inc()
	s.inst.activeWorkers.Add(ctx, 1)
	return true
}

func (s *Server) leave(ctx context.Context) {
	s.inst.activeWorkers.Add(ctx, -1)
	s.workers.Dec()
	s.wg.Done()
}

// Shutdown closes every listener and waits for live workers to finish or
// for ctx to end. Workers are never interrupted.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for listener := range s.listeners {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger().Warn("closing listener", "error", err)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("http: %d workers still running: %w", s.ActiveWorkers(), ctx.Err())
	}
}

func (s *Server) track(listener io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.listeners[listener] = struct{}{}
	return true
}

func (s *Server) untrack(listener io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.listeners, listener)
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *Server) listen(ctx context.Context, addr string) (net.Listener, error) {
	var config net.ListenConfig
	if s.ReusePort {
		config.Control = reusePortControl
	}

	return config.Listen(ctx, "tcp", addr)
}

func (s *Server) tlsConfig(certFile, keyFile string) (*tls.Config, error) {
	var config *tls.Config
	if s.TLSConfig != nil {
		config = s.TLSConfig.Clone()
	} else {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if certFile != "" || keyFile != "" {
		certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("http: loading key pair: %w", err)
		}
		config.Certificates = append(config.Certificates, certificate)
	}

	if len(config.Certificates) == 0 && config.GetCertificate == nil {
		return nil, ErrNoTLSConfig
	}

	return config, nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func newAcceptBackOff() *backoff.ExponentialBackOff {
	pacing := backoff.NewExponentialBackOff()
	pacing.InitialInterval = 5 * time.Millisecond
	pacing.MaxInterval = time.Second
	pacing.MaxElapsedTime = 0
	pacing.Reset()
	return pacing
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
