// Package pool holds the fixed backend address list and the strategies
// that pick a backend from it for each request.
package pool
