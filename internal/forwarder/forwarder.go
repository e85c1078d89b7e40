package forwarder

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/akalantzis/revproxy/internal/message"
)

// Forwarder proxies single requests to backends. One TCP connection is
// dialed per request; there is no pooling or reuse.
type Forwarder struct {
	logger         *slog.Logger
	dialTimeout    time.Duration
	readTimeout    time.Duration
	maxHeaderBytes int
}

func New(logger *slog.Logger, dialTimeout, readTimeout time.Duration, maxHeaderBytes int) *Forwarder {
	return &Forwarder{
		logger:         logger,
		dialTimeout:    dialTimeout,
		readTimeout:    readTimeout,
		maxHeaderBytes: maxHeaderBytes,
	}
}

// Forward writes req to the backend at addr and returns its framed
// response. The read deadline bounds the whole response read; for
// responses without Content-Length it is what guarantees forward
// progress when the backend never closes its side.
func (f *Forwarder) Forward(req *message.Message, addr string) (*message.Message, error) {
	conn, err := net.DialTimeout("tcp", addr, f.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectFailed, addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(req.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	if f.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(f.readTimeout)); err != nil {
			f.logger.Warn("failed to set backend read deadline",
				slog.String("backend", addr),
				slog.Any("err", err))
		}
	}

	resp, err := message.NewFramer(conn, f.maxHeaderBytes).ReadResponse()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: backend %s closed before responding", ErrReadFailed, addr)
	}

	return resp, nil
}
