package pool

import "math/rand"

type randomStrategy struct{}

func (r *randomStrategy) Select(p *Pool) string {
	index := rand.Intn(p.Len())
	return p.addrs[index]
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
