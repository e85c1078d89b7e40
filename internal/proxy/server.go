package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/akalantzis/revproxy/internal/forwarder"
	"github.com/akalantzis/revproxy/internal/metrics"
	"github.com/akalantzis/revproxy/internal/pool"
)

// Server accepts client connections and spawns one handler goroutine
// per connection. The address is validated before the server is built.
type Server struct {
	addr           string
	logger         *slog.Logger
	pool           *pool.Pool
	strategy       pool.Strategy
	forwarder      *forwarder.Forwarder
	collector      *metrics.Collector
	maxHeaderBytes int

	mutex    sync.Mutex
	listener net.Listener
	handlers sync.WaitGroup
}

// New creates a proxy server listening on addr once started. collector
// may be nil when no metrics are wanted.
func New(
	addr string,
	logger *slog.Logger,
	backends *pool.Pool,
	strategy pool.Strategy,
	fwd *forwarder.Forwarder,
	collector *metrics.Collector,
	maxHeaderBytes int,
) (*Server, error) {
	if err := validateHost(addr); err != nil {
		return nil, err
	}

	return &Server{
		addr:           addr,
		logger:         logger,
		pool:           backends,
		strategy:       strategy,
		forwarder:      fwd,
		collector:      collector,
		maxHeaderBytes: maxHeaderBytes,
	}, nil
}

// ListenAndServe binds the configured address and runs the accept loop
// until Shutdown closes the listener.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

// Serve runs the accept loop on ln. A failing or panicking handler
// never stops the loop; only closing the listener does.
func (s *Server) Serve(ln net.Listener) error {
	s.mutex.Lock()
	s.listener = ln
	s.mutex.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("Failed to accept connection", slog.Any("err", err))
			continue
		}

		s.handlers.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the bound listener address, or nil before Serve runs.
// Useful when the server was started on ":0".
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown closes the listener and waits for in-flight handlers until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	ln := s.listener
	s.mutex.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) emit(event metrics.Event) {
	if s.collector == nil {
		return
	}
	s.collector.Emit(event)
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
