// Package forwarder sends a rewritten request to one backend over a
// fresh TCP connection and frames its response. It never retries
// against a different backend; every failure mode is reported with a
// typed error so the caller can answer the client with a 502.
package forwarder
