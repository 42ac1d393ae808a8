// Package queue implements component E: the message queue engine backing
// both standard and FIFO queues. Visibility timeouts and long polling are
// implemented with a per-queue condition variable, following the storage
// design note in spec.md §9 directing targets to map long-poll receive onto
// the host language's native condition-variable primitive rather than a
// busy-poll loop.
package queue

import "time"

// QueueKind distinguishes ordering/dedup semantics.
type QueueKind string

const (
	KindStandard QueueKind = "standard"
	KindFIFO     QueueKind = "fifo"
)

// QueueDef is a queue's immutable configuration, supplied at creation.
type QueueDef struct {
	Name                  string
	Kind                  QueueKind
	VisibilityTimeout     time.Duration
	MessageRetention      time.Duration
	ContentBasedDedup     bool // FIFO only
	DedupWindow           time.Duration
	DeadLetterTarget      string // queue name, empty if none configured
	MaxReceiveCount       int    // redrive threshold before DLQ transfer
	DelaySeconds          time.Duration
}

// Message is one enqueued item, tracked through its full lifecycle.
type Message struct {
	ID              string
	Body            string
	Attributes      map[string]string
	GroupID         string // FIFO only
	DedupID         string // FIFO only
	SequenceNumber  uint64
	EnqueuedAt      time.Time
	VisibleAt       time.Time // messages are invisible to receivers until this time
	ReceiveCount    int
	ReceiptHandle   string // changes every time the message becomes visible then is received
	FirstReceivedAt time.Time
}

// SendResult is returned from a successful SendMessage call.
type SendResult struct {
	MessageID      string
	SequenceNumber uint64
	Deduplicated   bool // true if an existing in-window message satisfied this send
}

// ReceiveOptions configures a ReceiveMessage call.
type ReceiveOptions struct {
	MaxMessages       int
	WaitTime          time.Duration // long-poll duration; 0 = immediate return
	VisibilityTimeout time.Duration // 0 = use the queue default
}

// ChangeVisibilityEntry is one entry of a batch visibility-change request.
type ChangeVisibilityEntry struct {
	ReceiptHandle string
	Timeout       time.Duration
}

// BatchFailure records one failed entry within a batch operation, mirroring
// the per-entry Failed/Successful split used by every batch wire operation.
type BatchFailure struct {
	ID      string
	Code    string
	Message string
}
