// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the proxy configuration structure
// including the listen address, backend address list, strategy selection,
// framing limits, and backend timeouts.
package config
