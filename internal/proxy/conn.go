package proxy

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/akalantzis/revproxy/internal/message"
	"github.com/akalantzis/revproxy/internal/metrics"
)

// handleConn runs the per-connection state machine: read request,
// select backend, rewrite, forward, write response, close. All failure
// handling stays inside this goroutine; the recover at the top is the
// supervision boundary that keeps a broken handler away from the
// accept loop.
func (s *Server) handleConn(conn net.Conn) {
	defer s.handlers.Done()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Connection handler panicked",
				slog.String("client", conn.RemoteAddr().String()),
				slog.Any("panic", r))
		}
	}()

	clientAddr := conn.RemoteAddr().String()

	req, err := message.NewFramer(conn, s.maxHeaderBytes).ReadRequest()
	if err != nil {
		s.rejectRequest(conn, clientAddr, err)
		return
	}
	if req == nil {
		// Client went away before sending a full request. Normal close,
		// not an error.
		return
	}

	backend := s.strategy.Select(s.pool)
	s.emit(metrics.Event{
		Type:      metrics.EventBackendSelected,
		Timestamp: time.Now(),
		Backend:   backend,
	})

	req.AppendForwardedFor(clientAddr)

	s.logger.Info("Forwarding request",
		slog.String("client", clientAddr),
		slog.String("backend", backend),
		slog.String("request", req.StartLine()))

	start := time.Now()

	resp, err := s.forwarder.Forward(req, backend)
	if err != nil {
		s.logger.Error("Backend request failed",
			slog.String("client", clientAddr),
			slog.String("backend", backend),
			slog.Any("err", err))
		s.emit(metrics.Event{
			Type:      metrics.EventBadGateway,
			Timestamp: time.Now(),
			Backend:   backend,
		})
		s.writeSynthesized(conn, clientAddr, badGatewayResponse())
		return
	}

	raw := resp.Bytes()
	if _, err := conn.Write(raw); err != nil {
		s.logger.Warn("Failed to write response to client",
			slog.String("client", clientAddr),
			slog.Any("err", err))
		return
	}

	s.emit(metrics.Event{
		Type:      metrics.EventResponseRelayed,
		Timestamp: time.Now(),
		Backend:   backend,
		Bytes:     int64(len(raw)),
	})

	s.logger.Info("Relayed response",
		slog.String("client", clientAddr),
		slog.String("backend", backend),
		slog.Int("status", resp.Status),
		slog.Int("bytes", len(raw)),
		slog.Duration("duration", time.Since(start)))
}

// rejectRequest maps a framing error to the client-visible outcome:
// oversized headers close the connection without a response, a
// malformed request gets a 400, anything else is a silent close.
func (s *Server) rejectRequest(conn net.Conn, clientAddr string, err error) {
	s.emit(metrics.Event{
		Type:      metrics.EventRequestRejected,
		Timestamp: time.Now(),
	})

	switch {
	case errors.Is(err, message.ErrHeaderTooLarge):
		s.logger.Warn("Rejected oversized request header block",
			slog.String("client", clientAddr),
			slog.Any("err", err))

	case errors.Is(err, message.ErrMalformedStartLine),
		errors.Is(err, message.ErrMalformedHeader),
		errors.Is(err, message.ErrInvalidContentLength):
		s.logger.Warn("Rejected malformed request",
			slog.String("client", clientAddr),
			slog.Any("err", err))
		s.writeSynthesized(conn, clientAddr, badRequestResponse())

	default:
		s.logger.Warn("Failed to read client request",
			slog.String("client", clientAddr),
			slog.Any("err", err))
	}
}

func (s *Server) writeSynthesized(conn net.Conn, clientAddr string, response []byte) {
	if _, err := conn.Write(response); err != nil {
		s.logger.Warn("Failed to write error response",
			slog.String("client", clientAddr),
			slog.Any("err", err))
	}
}
