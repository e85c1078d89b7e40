package pool

// Strategy picks a backend address from a pool for one request.
// Implementations must be safe for unlimited concurrent callers.
type Strategy interface {
	Select(p *Pool) string
}
