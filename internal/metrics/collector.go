package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventBackendSelected EventType = "backend_selected"
	EventResponseRelayed EventType = "response_relayed"
	EventBadGateway      EventType = "bad_gateway"
	EventRequestRejected EventType = "request_rejected"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Backend   string
	Bytes     int64
}

// Collector receives events on a buffered channel and folds them into
// counters in its own goroutine, keeping bookkeeping off the request
// path.
type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit sends an event without blocking; events are dropped when the
// buffer is full rather than stalling a connection handler.
func (c *Collector) Emit(event Event) {
	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventBackendSelected:
		c.metrics.RecordSelection(event.Backend)

	case EventResponseRelayed:
		c.metrics.RecordRelayed(event.Backend, event.Bytes)

	case EventBadGateway:
		c.metrics.RecordBadGateway(event.Backend)

	case EventRequestRejected:
		c.metrics.RecordRejected()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(strategy string) Snapshot {
	return c.metrics.Snapshot(strategy)
}
