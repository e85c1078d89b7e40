// Package message implements byte-level HTTP/1.1 message framing and
// serialization. It reads one complete request or response from a raw
// connection without using a library HTTP parser, preserving header
// order, casing, and duplicates so messages can be relayed unchanged.
package message
