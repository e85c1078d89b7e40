package message

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes the two start-line shapes of an HTTP/1.1 message.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
)

// Header is a single header field. Fields keep the casing they arrived
// with; duplicates are kept as separate entries in order.
type Header struct {
	Name  string
	Value string
}

// Message is one fully framed HTTP/1.1 message. For requests Method,
// Target and Proto are set; for responses Proto, Status and Reason.
type Message struct {
	Kind Kind

	Method string
	Target string
	Proto  string

	Status int
	Reason string

	Headers []Header
	Body    []byte
}

// Get returns the value of the first header with the given name,
// matched case-insensitively.
func (m *Message) Get(name string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// ContentLength reports the declared Content-Length, whether the header
// is present, and an error if its value is not a non-negative integer.
func (m *Message) ContentLength() (int, bool, error) {
	v, ok := m.Get("Content-Length")
	if !ok {
		return 0, false, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, true, fmt.Errorf("%w: %q", ErrInvalidContentLength, v)
	}

	return n, true, nil
}

// StartLine renders the message's start line without the trailing CRLF,
// mainly for request logging.
func (m *Message) StartLine() string {
	if m.Kind == KindRequest {
		return fmt.Sprintf("%s %s %s", m.Method, m.Target, m.Proto)
	}
	return fmt.Sprintf("%s %d %s", m.Proto, m.Status, m.Reason)
}

// Bytes serializes the message back to wire format: start line, headers
// in their original order, a blank line, then the raw body.
func (m *Message) Bytes() []byte {
	var b bytes.Buffer

	b.WriteString(m.StartLine())
	b.WriteString("\r\n")

	for _, h := range m.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")
	b.Write(m.Body)

	return b.Bytes()
}
