package proxy_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/akalantzis/revproxy/internal/forwarder"
	"github.com/akalantzis/revproxy/internal/metrics"
	"github.com/akalantzis/revproxy/internal/pool"
	"github.com/akalantzis/revproxy/internal/proxy"
)

var _ = Describe("Server", func() {
	var (
		log       *slog.Logger
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
		servers   []*proxy.Server
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(1024, log)
		collector.Start(ctx)
		servers = nil
	})

	AfterEach(func() {
		for _, srv := range servers {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			srv.Shutdown(shutdownCtx)
			shutdownCancel()
		}
		cancel()
	})

	// startProxy builds a server over the given backends and runs its
	// accept loop on an ephemeral port.
	startProxy := func(backends []string, maxHeaderBytes int) string {
		p, err := pool.New(backends)
		Expect(err).NotTo(HaveOccurred())

		fwd := forwarder.New(log, time.Second, 300*time.Millisecond, maxHeaderBytes)

		srv, err := proxy.New("127.0.0.1:0", log, p, pool.NewRoundRobinStrategy(), fwd, collector, maxHeaderBytes)
		Expect(err).NotTo(HaveOccurred())

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		go func() {
			defer GinkgoRecover()
			Expect(srv.Serve(ln)).To(Succeed())
		}()

		servers = append(servers, srv)
		return ln.Addr().String()
	}

	Describe("New", func() {
		It("should accept a valid listen address", func() {
			srv, err := proxy.New("127.0.0.1:9999", log, mustPool("127.0.0.1:8081"), pool.NewRoundRobinStrategy(), nil, nil, 1024)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv).NotTo(BeNil())
		})

		It("should accept a port-only address", func() {
			srv, err := proxy.New(":9999", log, mustPool("127.0.0.1:8081"), pool.NewRoundRobinStrategy(), nil, nil, 1024)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv).NotTo(BeNil())
		})

		It("should reject an invalid address", func() {
			_, err := proxy.New("not-an-address", log, mustPool("127.0.0.1:8081"), pool.NewRoundRobinStrategy(), nil, nil, 1024)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("request proxying", func() {
		It("should alternate backends in round-robin order", func() {
			a := startTestBackend("alpha")
			defer a.stop()
			b := startTestBackend("beta")
			defer b.stop()

			addr := startProxy([]string{a.addr, b.addr}, 64*1024)

			Expect(sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")).To(HaveSuffix("alpha"))
			Expect(sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")).To(HaveSuffix("beta"))
			Expect(sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")).To(HaveSuffix("alpha"))
			Expect(sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")).To(HaveSuffix("beta"))
		})

		It("should relay request and response bodies byte-for-byte", func() {
			backend := startTestBackend("echo")
			defer backend.stop()

			addr := startProxy([]string{backend.addr}, 64*1024)

			response := sendRequest(addr,
				"POST /data HTTP/1.1\r\nHost: test\r\nContent-Length: 11\r\n\r\nhello world")

			Expect(response).To(Equal(
				"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 4\r\n\r\necho"))

			var seen []byte
			Eventually(backend.requests).Should(Receive(&seen))
			Expect(string(seen)).To(HavePrefix("POST /data HTTP/1.1\r\n"))
			Expect(string(seen)).To(ContainSubstring("Content-Length: 11\r\n"))
			Expect(string(seen)).To(HaveSuffix("\r\n\r\nhello world"))
		})

		It("should add X-Forwarded-For with the client address", func() {
			backend := startTestBackend("x")
			defer backend.stop()

			addr := startProxy([]string{backend.addr}, 64*1024)

			sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")

			var seen []byte
			Eventually(backend.requests).Should(Receive(&seen))
			Expect(string(seen)).To(ContainSubstring("X-Forwarded-For: 127.0.0.1:"))
		})

		It("should append the client address to an existing X-Forwarded-For", func() {
			backend := startTestBackend("x")
			defer backend.stop()

			addr := startProxy([]string{backend.addr}, 64*1024)

			sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\nX-Forwarded-For: 10.0.0.1\r\n\r\n")

			var seen []byte
			Eventually(backend.requests).Should(Receive(&seen))
			Expect(string(seen)).To(ContainSubstring("X-Forwarded-For: 10.0.0.1, 127.0.0.1:"))
		})

		It("should split 50 concurrent requests 25/25 across two backends", func() {
			a := startTestBackend("alpha")
			defer a.stop()
			b := startTestBackend("beta")
			defer b.stop()

			addr := startProxy([]string{a.addr, b.addr}, 64*1024)

			const clients = 50

			var wg sync.WaitGroup
			for i := 0; i < clients; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					response := sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")
					Expect(response).To(ContainSubstring("HTTP/1.1 200 OK"))
				}()
			}
			wg.Wait()

			Expect(a.hits.Load()).To(BeNumerically("~", clients/2, 1))
			Expect(b.hits.Load()).To(BeNumerically("~", clients/2, 1))
			Expect(a.hits.Load() + b.hits.Load()).To(Equal(int64(clients)))
		})
	})

	Describe("backend failures", func() {
		It("should answer 502 with a plaintext body when no backend is reachable", func() {
			addr := startProxy([]string{unreachableAddr()}, 64*1024)

			response := sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")

			Expect(response).To(HavePrefix("HTTP/1.1 502 Bad Gateway\r\n"))
			Expect(response).To(ContainSubstring("Content-Type: text/plain\r\n"))

			_, body, found := strings.Cut(response, "\r\n\r\n")
			Expect(found).To(BeTrue())
			Expect(body).NotTo(BeEmpty())
			Expect(response).To(ContainSubstring(fmt.Sprintf("Content-Length: %d\r\n", len(body))))
		})

		It("should keep accepting connections after backend failures", func() {
			addr := startProxy([]string{unreachableAddr()}, 64*1024)

			for i := 0; i < 5; i++ {
				response := sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")
				Expect(response).To(HavePrefix("HTTP/1.1 502 "))
			}
		})
	})

	Describe("client failures", func() {
		It("should close oversized requests without a response and survive", func() {
			backend := startTestBackend("x")
			defer backend.stop()

			addr := startProxy([]string{backend.addr}, 1024)

			oversized := "GET / HTTP/1.1\r\nX-Padding: " + strings.Repeat("a", 4096) + "\r\n\r\n"
			Expect(sendRequest(addr, oversized)).To(BeEmpty())

			// No backend connection may have been opened for it.
			Expect(backend.hits.Load()).To(BeZero())

			// And the proxy still serves the next client.
			Expect(sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")).To(HaveSuffix("x"))
		})

		It("should answer 400 to a malformed start line", func() {
			backend := startTestBackend("x")
			defer backend.stop()

			addr := startProxy([]string{backend.addr}, 64*1024)

			response := sendRequest(addr, "NONSENSE\r\nHost: test\r\n\r\n")
			Expect(response).To(HavePrefix("HTTP/1.1 400 Bad Request\r\n"))
			Expect(backend.hits.Load()).To(BeZero())
		})

		It("should treat a client that disconnects early as a silent close", func() {
			backend := startTestBackend("x")
			defer backend.stop()

			addr := startProxy([]string{backend.addr}, 64*1024)

			conn, err := net.Dial("tcp", addr)
			Expect(err).NotTo(HaveOccurred())
			conn.Close()

			Expect(sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")).To(HaveSuffix("x"))
			Expect(backend.hits.Load()).To(Equal(int64(1)))
		})
	})

	Describe("metrics", func() {
		It("should count selections and relayed responses per backend", func() {
			backend := startTestBackend("x")
			defer backend.stop()

			addr := startProxy([]string{backend.addr}, 64*1024)

			sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")
			sendRequest(addr, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")

			Eventually(func() int64 {
				return collector.Snapshot("round-robin").Backends[backend.addr].Relayed
			}).Should(Equal(int64(2)))

			snap := collector.Snapshot("round-robin")
			Expect(snap.Backends[backend.addr].Selections).To(Equal(int64(2)))
			Expect(snap.BytesToClient).To(BeNumerically(">", 0))
		})
	})

	Describe("Shutdown", func() {
		It("should stop the accept loop", func() {
			backend := startTestBackend("x")
			defer backend.stop()

			addr := startProxy([]string{backend.addr}, 64*1024)
			srv := servers[len(servers)-1]

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			Expect(srv.Shutdown(shutdownCtx)).To(Succeed())

			_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
			Expect(err).To(HaveOccurred())
		})
	})
})

func mustPool(addrs ...string) *pool.Pool {
	p, err := pool.New(addrs)
	Expect(err).NotTo(HaveOccurred())
	return p
}

// testBackend is a raw TCP HTTP server answering every request with a
// fixed identifying body, counting hits and capturing request bytes.
type testBackend struct {
	addr     string
	ln       net.Listener
	hits     atomic.Int64
	requests chan []byte
}

func startTestBackend(id string) *testBackend {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	tb := &testBackend{
		addr:     ln.Addr().String(),
		ln:       ln,
		requests: make(chan []byte, 64),
	}

	go func() {
		defer GinkgoRecover()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()

				raw := readFullRequest(conn)
				if len(raw) == 0 {
					return
				}

				tb.hits.Add(1)
				select {
				case tb.requests <- raw:
				default:
				}

				fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s", len(id), id)
			}(conn)
		}
	}()

	return tb
}

func (tb *testBackend) stop() {
	tb.ln.Close()
}

// readFullRequest frames one request the simple way: header block plus
// any Content-Length body.
func readFullRequest(conn net.Conn) []byte {
	var buf []byte
	tmp := make([]byte, 1024)

	for {
		if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
			if len(buf) >= i+4+contentLength(buf[:i]) {
				return buf
			}
		}

		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			return buf
		}
	}
}

func contentLength(header []byte) int {
	for _, line := range strings.Split(string(header), "\r\n") {
		if rest, ok := strings.CutPrefix(strings.ToLower(line), "content-length:"); ok {
			n, _ := strconv.Atoi(strings.TrimSpace(rest))
			return n
		}
	}
	return 0
}

// sendRequest writes one raw request and returns everything the proxy
// sends back before closing the connection.
func sendRequest(addr, raw string) string {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	Expect(err).NotTo(HaveOccurred())
	defer conn.Close()

	Expect(conn.SetDeadline(time.Now().Add(2 * time.Second))).To(Succeed())

	// The write may race with the proxy closing the connection (e.g.
	// oversized headers), so only what comes back matters.
	_, _ = conn.Write([]byte(raw))

	data, _ := io.ReadAll(conn)
	return string(data)
}

// unreachableAddr returns an address nothing is listening on.
func unreachableAddr() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	addr := ln.Addr().String()
	ln.Close()

	return addr
}
