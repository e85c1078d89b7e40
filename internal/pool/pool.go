package pool

import "errors"

// ErrEmptyPool is returned when a Pool is constructed without backends.
var ErrEmptyPool = errors.New("backend pool is empty")

// Pool is an immutable ordered list of backend host:port addresses,
// fixed at startup and shared read-only by all connections.
type Pool struct {
	addrs []string
}

// New copies addrs into a Pool. The pool must be non-empty.
func New(addrs []string) (*Pool, error) {
	if len(addrs) == 0 {
		return nil, ErrEmptyPool
	}

	cp := make([]string, len(addrs))
	copy(cp, addrs)

	return &Pool{addrs: cp}, nil
}

// Len returns the number of backends.
func (p *Pool) Len() int {
	return len(p.addrs)
}

// Addrs returns the backend addresses in declaration order. Callers
// must not modify the returned slice.
func (p *Pool) Addrs() []string {
	return p.addrs
}
