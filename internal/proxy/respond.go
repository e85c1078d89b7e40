package proxy

import "fmt"

// synthesizeResponse builds a minimal HTTP/1.1 response entirely from
// scratch, used when the proxy must answer the client itself. The
// Content-Length always matches the plaintext body exactly.
func synthesizeResponse(status int, reason, body string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, reason, len(body), body))
}

func badGatewayResponse() []byte {
	return synthesizeResponse(502, "Bad Gateway", "Bad Gateway - Backend unavailable")
}

func badRequestResponse() []byte {
	return synthesizeResponse(400, "Bad Request", "Bad Request")
}
