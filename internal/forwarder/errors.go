package forwarder

import "errors"

var (
	// ErrConnectFailed means the TCP connection to the backend could
	// not be established.
	ErrConnectFailed = errors.New("backend connect failed")

	// ErrWriteFailed means the request could not be written to an
	// established backend connection.
	ErrWriteFailed = errors.New("backend write failed")

	// ErrReadFailed means no usable response arrived: the backend
	// closed or stalled before sending a complete header block.
	ErrReadFailed = errors.New("backend read failed")
)
