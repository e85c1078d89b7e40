// Package proxy implements the TCP listener and the per-connection
// handler: frame the client request, pick a backend, inject
// X-Forwarded-For, forward, and relay the response or a synthesized
// error. Each accepted connection is handled by its own supervised
// goroutine so one misbehaving client can never stall the accept loop
// or another connection.
package proxy
