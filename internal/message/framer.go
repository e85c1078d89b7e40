package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var headerTerminator = []byte("\r\n\r\n")

// Framer incrementally reads one HTTP/1.1 message from a byte stream.
// Bytes are accumulated in an append-only buffer; however the underlying
// reads are chunked, the header block is only parsed once the CRLFCRLF
// terminator has been observed, and the body is then framed either by
// Content-Length or, for responses without one, by end of stream.
//
// A Framer reads a single message and is not reused.
type Framer struct {
	r              io.Reader
	buf            []byte
	maxHeaderBytes int
	tmp            [4096]byte
}

// NewFramer returns a Framer reading from r. maxHeaderBytes caps the
// size of the header block; exceeding it is a fatal framing error.
func NewFramer(r io.Reader, maxHeaderBytes int) *Framer {
	return &Framer{r: r, maxHeaderBytes: maxHeaderBytes}
}

// ReadRequest frames one request. It returns (nil, nil) when the peer
// closes the connection before a complete request arrives; callers must
// treat that as a normal, silent close.
func (f *Framer) ReadRequest() (*Message, error) {
	return f.read(KindRequest)
}

// ReadResponse frames one response. Responses without a Content-Length
// are drained until the peer closes its side or a read deadline on the
// underlying connection fires; whatever has been buffered by then is
// the body.
func (f *Framer) ReadResponse() (*Message, error) {
	return f.read(KindResponse)
}

func (f *Framer) read(kind Kind) (*Message, error) {
	end, err := f.readHeaderBlock()
	if err != nil {
		return nil, err
	}
	if end < 0 {
		return nil, nil
	}

	msg := &Message{Kind: kind}
	if err := parseHeaderBlock(msg, f.buf[:end]); err != nil {
		return nil, err
	}

	bodyStart := end + len(headerTerminator)

	length, present, err := msg.ContentLength()
	if err != nil {
		return nil, err
	}

	switch {
	case present:
		complete, err := f.fillTo(bodyStart + length)
		if err != nil {
			return nil, err
		}
		if !complete && kind == KindRequest {
			// Client went away mid-body; same silent close as an
			// incomplete header block.
			return nil, nil
		}
		msg.Body = f.buf[bodyStart:min(bodyStart+length, len(f.buf))]

	case kind == KindResponse:
		f.drain()
		msg.Body = f.buf[bodyStart:]
	}

	return msg, nil
}

// readHeaderBlock reads until the header terminator is buffered and
// returns its index. It returns -1 when the stream ends first.
func (f *Framer) readHeaderBlock() (int, error) {
	for {
		if i := bytes.Index(f.buf, headerTerminator); i >= 0 {
			if i > f.maxHeaderBytes {
				return 0, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, i)
			}
			return i, nil
		}
		if len(f.buf) > f.maxHeaderBytes {
			return 0, fmt.Errorf("%w: %d bytes buffered without terminator", ErrHeaderTooLarge, len(f.buf))
		}

		n, err := f.r.Read(f.tmp[:])
		if n > 0 {
			f.buf = append(f.buf, f.tmp[:n]...)
		}
		if err != nil {
			if i := bytes.Index(f.buf, headerTerminator); i >= 0 {
				return i, nil
			}
			if errors.Is(err, io.EOF) {
				return -1, nil
			}
			return 0, fmt.Errorf("read header block: %w", err)
		}
	}
}

// fillTo reads until at least total bytes are buffered. It reports
// false when the stream ends or a read deadline fires before then.
func (f *Framer) fillTo(total int) (bool, error) {
	for len(f.buf) < total {
		n, err := f.r.Read(f.tmp[:])
		if n > 0 {
			f.buf = append(f.buf, f.tmp[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
				return len(f.buf) >= total, nil
			}
			return false, fmt.Errorf("read body: %w", err)
		}
	}
	return true, nil
}

// drain accumulates everything the peer sends until it closes its side,
// a read deadline fires, or the connection errors out. Whatever made it
// into the buffer counts as the body.
func (f *Framer) drain() {
	for {
		n, err := f.r.Read(f.tmp[:])
		if n > 0 {
			f.buf = append(f.buf, f.tmp[:n]...)
		}
		if err != nil {
			return
		}
	}
}

func parseHeaderBlock(msg *Message, block []byte) error {
	lines := strings.Split(string(block), "\r\n")

	if err := parseStartLine(msg, lines[0]); err != nil {
		return err
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		msg.Headers = append(msg.Headers, Header{Name: name, Value: strings.TrimSpace(value)})
	}

	return nil
}

func parseStartLine(msg *Message, line string) error {
	switch msg.Kind {
	case KindRequest:
		parts := strings.Split(line, " ")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || !strings.HasPrefix(parts[2], "HTTP/") {
			return fmt.Errorf("%w: %q", ErrMalformedStartLine, line)
		}
		msg.Method, msg.Target, msg.Proto = parts[0], parts[1], parts[2]

	case KindResponse:
		proto, rest, ok := strings.Cut(line, " ")
		if !ok || !strings.HasPrefix(proto, "HTTP/") {
			return fmt.Errorf("%w: %q", ErrMalformedStartLine, line)
		}
		code, reason, _ := strings.Cut(rest, " ")
		status, err := strconv.Atoi(code)
		if err != nil || status < 100 || status > 599 {
			return fmt.Errorf("%w: %q", ErrMalformedStartLine, line)
		}
		msg.Proto, msg.Status, msg.Reason = proto, status, reason
	}

	return nil
}
