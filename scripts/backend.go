// Backend is a simple test HTTP server used for proxy testing. It
// answers every request with a plaintext body identifying the instance
// and echoes the X-Forwarded-For header it received, so round-robin
// distribution and header injection can be verified with curl.
//
// Usage:
//
//	go run backend.go -port 8081
//	go run backend.go -port 8082
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
)

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	flag.Parse()

	addr := fmt.Sprintf(":%d", *port)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s from %s (X-Forwarded-For: %s)",
			r.Method, r.URL.Path, r.RemoteAddr, r.Header.Get("X-Forwarded-For"))

		body := fmt.Sprintf("backend %d: %s %s (X-Forwarded-For: %s)\n",
			*port, r.Method, r.URL.Path, r.Header.Get("X-Forwarded-For"))

		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, body)
	})

	log.Printf("Test backend listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
