package pool

import "sync/atomic"

type roundRobinStrategy struct {
	current uint64
}

// Select advances the shared cursor atomically and returns the backend
// at the previous position, giving strict cyclic order under any number
// of concurrent callers. This counter is the only state shared across
// connections.
func (rr *roundRobinStrategy) Select(p *Pool) string {
	n := atomic.AddUint64(&rr.current, 1)

	index := (n - 1) % uint64(p.Len())

	return p.addrs[index]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{
		current: 0,
	}
}
