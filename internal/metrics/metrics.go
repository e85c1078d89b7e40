package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mutex         sync.RWMutex
	selections    map[string]int64
	relayed       map[string]int64
	badGateways   map[string]int64
	rejected      int64
	bytesToClient int64
	startTime     time.Time
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Rejected      int64                     `json:"rejected"`
	BytesToClient int64                     `json:"bytes_to_client"`
	Uptime        time.Duration             `json:"uptime"`
	Backends      map[string]BackendMetrics `json:"backends"`
	Strategy      string                    `json:"strategy"`
}

type BackendMetrics struct {
	Selections  int64 `json:"selections"`
	Relayed     int64 `json:"relayed"`
	BadGateways int64 `json:"bad_gateways"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		selections:  make(map[string]int64),
		relayed:     make(map[string]int64),
		badGateways: make(map[string]int64),
		startTime:   time.Now(),
	}
}

func (m *Metrics) RecordSelection(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[backend]++
}

func (m *Metrics) RecordRelayed(backend string, bytes int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.relayed[backend]++
	m.bytesToClient += bytes
}

func (m *Metrics) RecordBadGateway(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.badGateways[backend]++
}

func (m *Metrics) RecordRejected() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejected++
}

func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Rejected:      m.rejected,
		BytesToClient: m.bytesToClient,
		Uptime:        time.Since(m.startTime),
		Backends:      make(map[string]BackendMetrics),
		Strategy:      strategy,
	}

	for backend, count := range m.selections {
		bm := snap.Backends[backend]
		bm.Selections = count
		snap.Backends[backend] = bm
		snap.TotalRequests += count
	}

	for backend, count := range m.relayed {
		bm := snap.Backends[backend]
		bm.Relayed = count
		snap.Backends[backend] = bm
	}

	for backend, count := range m.badGateways {
		bm := snap.Backends[backend]
		bm.BadGateways = count
		snap.Backends[backend] = bm
	}

	return snap
}
