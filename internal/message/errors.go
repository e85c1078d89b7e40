package message

import "errors"

var (
	// ErrHeaderTooLarge means the header block grew past the framer's
	// configured limit before the terminator was seen.
	ErrHeaderTooLarge = errors.New("header block exceeds size limit")

	// ErrMalformedStartLine means the first line of the message could
	// not be parsed as a request or status line.
	ErrMalformedStartLine = errors.New("malformed start line")

	// ErrMalformedHeader means a header line had no colon separator.
	ErrMalformedHeader = errors.New("malformed header field")

	// ErrInvalidContentLength means a Content-Length header was present
	// but its value was not a non-negative integer.
	ErrInvalidContentLength = errors.New("invalid Content-Length value")
)
