package logging

import "sync"

// Record is one structured request-log entry captured by the logging
// middleware and exposed through the management surface's ring buffer and
// WebSocket log tail.
type Record struct {
	Seq        uint64    `json:"seq"`
	Service    string    `json:"service"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Handler    string    `json:"handler,omitempty"`
	BodySize   int       `json:"body_size"`
	Status     int       `json:"status"`
	LatencyMs  float64   `json:"latency_ms"`
	TraceID    string    `json:"trace_id,omitempty"`
	TimestampF string    `json:"timestamp"`
}

// Subscriber receives ring-buffer records as they are appended. Writes are
// best-effort: a record is skipped for a subscriber whose channel is full,
// never blocking the producing HTTP handler.
type Subscriber chan Record

// RingBuffer is a bounded, append-only, arrival-ordered buffer of log
// records shared by every service's logging middleware. It is process-wide
// (created once by the orchestrator and injected everywhere) rather than a
// package-level singleton, so tests can run multiple isolated instances.
type RingBuffer struct {
	mu          sync.Mutex
	cap         int
	buf         []Record
	start       int // index of oldest record within buf
	size        int
	seq         uint64
	subscribers map[chan Record]struct{}
}

// NewRingBuffer creates a ring buffer holding at most capacity records.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &RingBuffer{
		cap:         capacity,
		buf:         make([]Record, capacity),
		subscribers: make(map[chan Record]struct{}),
	}
}

// Append adds a record, evicting the oldest on overflow, and fans it out to
// subscribers without blocking on slow readers.
func (rb *RingBuffer) Append(rec Record) Record {
	rb.mu.Lock()
	rb.seq++
	rec.Seq = rb.seq
	idx := (rb.start + rb.size) % rb.cap
	if rb.size < rb.cap {
		rb.size++
	} else {
		rb.start = (rb.start + 1) % rb.cap
	}
	rb.buf[idx] = rec
	subs := make([]chan Record, 0, len(rb.subscribers))
	for ch := range rb.subscribers {
		subs = append(subs, ch)
	}
	rb.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- rec:
		default:
			// best-effort: never block the handler on a slow subscriber
		}
	}
	return rec
}

// Snapshot returns all currently buffered records, oldest first.
func (rb *RingBuffer) Snapshot() []Record {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	out := make([]Record, rb.size)
	for i := 0; i < rb.size; i++ {
		out[i] = rb.buf[(rb.start+i)%rb.cap]
	}
	return out
}

// Subscribe registers a channel for live record fan-out. Call the returned
// function to unsubscribe.
func (rb *RingBuffer) Subscribe(buffered int) (chan Record, func()) {
	if buffered <= 0 {
		buffered = 64
	}
	ch := make(chan Record, buffered)
	rb.mu.Lock()
	rb.subscribers[ch] = struct{}{}
	rb.mu.Unlock()
	return ch, func() {
		rb.mu.Lock()
		delete(rb.subscribers, ch)
		rb.mu.Unlock()
		close(ch)
	}
}
