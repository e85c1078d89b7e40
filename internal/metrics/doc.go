// Package metrics collects per-backend counters for the proxy without
// touching the request path. Handlers emit events over a buffered
// channel with non-blocking sends; a dedicated goroutine folds them
// into counters that can be snapshotted for operator logging and tests.
// There is no metrics endpoint: the proxy exposes nothing but its
// listening socket.
package metrics
