// Package logger provides structured logging via the standard log/slog
// package: human-readable text output for development, JSON for
// production, with a configurable level.
package logger
