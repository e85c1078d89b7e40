package message

import "strings"

const forwardedForHeader = "X-Forwarded-For"

// AppendForwardedFor records clientAddr in the X-Forwarded-For header.
// An existing header (any casing) gets ", <addr>" appended to its value;
// otherwise a new header is added at the end. Start line, body and all
// other headers are left untouched.
func (m *Message) AppendForwardedFor(clientAddr string) {
	for i := range m.Headers {
		if strings.EqualFold(m.Headers[i].Name, forwardedForHeader) {
			m.Headers[i].Value += ", " + clientAddr
			return
		}
	}

	m.Headers = append(m.Headers, Header{Name: forwardedForHeader, Value: clientAddr})
}
