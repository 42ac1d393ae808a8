package queue

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Queue holds one queue's in-memory message set plus the condition variable
// that long-poll receivers wait on. A background reaper goroutine (started
// by the owning Engine) periodically returns expired in-flight messages to
// visibility and transfers over-received messages to a dead-letter queue.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	def QueueDef

	// ready holds messages available for receipt, in send order for
	// standard queues. FIFO queues additionally enforce head-of-line
	// blocking per group via inFlightGroups.
	ready *list.List // *Message

	// inFlight holds messages currently leased to a receiver, keyed by
	// receipt handle.
	inFlight map[string]*Message

	// inFlightGroups tracks which FIFO group IDs currently have a message
	// leased out, blocking further receives from the same group until the
	// lease is released or expires (head-of-line blocking, spec.md §4.5).
	inFlightGroups map[string]bool

	// dedupSeen maps a FIFO dedup id to the expiry of its dedup window.
	dedupSeen map[string]time.Time

	seq    uint64
	closed bool
}

func newQueue(def QueueDef) *Queue {
	q := &Queue{
		def:            def,
		ready:          list.New(),
		inFlight:       make(map[string]*Message),
		inFlightGroups: make(map[string]bool),
		dedupSeen:      make(map[string]time.Time),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send enqueues a message, applying FIFO content-based dedup when
// configured. Returns Deduplicated=true without creating a new message if an
// identical dedup id is still within its window (spec.md §4.5).
func (q *Queue) Send(body string, attrs map[string]string, groupID, dedupID string, delay time.Duration) (SendResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.def.Kind == KindFIFO && q.def.ContentBasedDedup && dedupID == "" {
		sum := sha256.Sum256([]byte(body))
		dedupID = hex.EncodeToString(sum[:])
	}
	if q.def.Kind == KindFIFO && dedupID != "" {
		if expiry, ok := q.dedupSeen[dedupID]; ok && time.Now().Before(expiry) {
			return SendResult{Deduplicated: true}, nil
		}
	}

	q.seq++
	now := time.Now()
	msg := &Message{
		ID:         uuid.NewString(),
		Body:       body,
		Attributes: attrs,
		GroupID:    groupID,
		DedupID:    dedupID,
		SequenceNumber: q.seq,
		EnqueuedAt: now,
		VisibleAt:  now.Add(delay),
	}
	q.ready.PushBack(msg)

	if q.def.Kind == KindFIFO && dedupID != "" {
		window := q.def.DedupWindow
		if window == 0 {
			window = 5 * time.Minute
		}
		q.dedupSeen[dedupID] = now.Add(window)
	}

	q.cond.Broadcast()
	return SendResult{MessageID: msg.ID, SequenceNumber: msg.SequenceNumber}, nil
}

// Receive blocks up to opts.WaitTime for at least one eligible message, per
// the condition-variable long-poll pattern: callers wait on q.cond, which is
// signalled by Send and by the reaper's visibility-expiry sweep.
func (q *Queue) Receive(opts ReceiveOptions) []*Message {
	max := opts.MaxMessages
	if max <= 0 {
		max = 1
	}
	vis := opts.VisibilityTimeout
	if vis == 0 {
		vis = q.def.VisibilityTimeout
	}
	deadline := time.Now().Add(opts.WaitTime)

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		out := q.drainEligibleLocked(max, vis)
		if len(out) > 0 || q.closed || opts.WaitTime <= 0 || time.Now().After(deadline) {
			return out
		}
		q.waitUntilLocked(deadline)
	}
}

// waitUntilLocked sleeps on q.cond until signalled or deadline passes. A
// helper goroutine converts the absolute deadline into a Broadcast so the
// waiter never blocks past its requested wait time.
func (q *Queue) waitUntilLocked(deadline time.Time) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return
	}
	timer := time.AfterFunc(remaining, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()
	q.cond.Wait()
}

// drainEligibleLocked moves up to max ready, currently-visible messages into
// in-flight state and returns them. Must be called with q.mu held.
func (q *Queue) drainEligibleLocked(max int, vis time.Duration) []*Message {
	var out []*Message
	now := time.Now()

	var next *list.Element
	for e := q.ready.Front(); e != nil && len(out) < max; e = next {
		next = e.Next()
		msg := e.Value.(*Message)

		if msg.VisibleAt.After(now) {
			continue
		}
		if q.def.Kind == KindFIFO && msg.GroupID != "" && q.inFlightGroups[msg.GroupID] {
			continue
		}

		q.ready.Remove(e)
		msg.ReceiptHandle = uuid.NewString()
		msg.ReceiveCount++
		if msg.FirstReceivedAt.IsZero() {
			msg.FirstReceivedAt = now
		}
		msg.VisibleAt = now.Add(vis)
		q.inFlight[msg.ReceiptHandle] = msg
		if q.def.Kind == KindFIFO && msg.GroupID != "" {
			q.inFlightGroups[msg.GroupID] = true
		}
		out = append(out, msg)
	}
	return out
}

// Delete removes a message from in-flight state by receipt handle, releasing
// its FIFO group lock.
func (q *Queue) Delete(receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.inFlight[receiptHandle]
	if !ok {
		return ldkerr.NotFound("ReceiptHandleIsInvalid", "unknown or expired receipt handle")
	}
	delete(q.inFlight, receiptHandle)
	if q.def.Kind == KindFIFO && msg.GroupID != "" {
		delete(q.inFlightGroups, msg.GroupID)
	}
	return nil
}

// ChangeVisibility adjusts how long an in-flight message stays leased.
func (q *Queue) ChangeVisibility(receiptHandle string, timeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.inFlight[receiptHandle]
	if !ok {
		return ldkerr.NotFound("ReceiptHandleIsInvalid", "unknown or expired receipt handle")
	}
	msg.VisibleAt = time.Now().Add(timeout)
	if timeout == 0 {
		// releasing immediately: return to ready and wake waiters
		delete(q.inFlight, receiptHandle)
		if q.def.Kind == KindFIFO && msg.GroupID != "" {
			delete(q.inFlightGroups, msg.GroupID)
		}
		q.ready.PushFront(msg)
		q.cond.Broadcast()
	}
	return nil
}

// ApproximateCount returns the number of ready (visible, not in-flight)
// messages, for status/metrics reporting.
func (q *Queue) ApproximateCount() (visible, inFlight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for e := q.ready.Front(); e != nil; e = e.Next() {
		if !e.Value.(*Message).VisibleAt.After(now) {
			visible++
		}
	}
	return visible, len(q.inFlight)
}

// sweepExpired requeues in-flight messages whose visibility timeout has
// elapsed without a Delete, transferring to the dead-letter target (returned
// as redrive requests the Engine performs, since a DLQ lives in a different
// Queue) once MaxReceiveCount is exceeded. Called periodically by the
// Engine's reaper goroutine.
func (q *Queue) sweepExpired(now time.Time) (requeued int, deadLettered []*Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for handle, msg := range q.inFlight {
		if msg.VisibleAt.After(now) {
			continue
		}
		delete(q.inFlight, handle)
		if q.def.Kind == KindFIFO && msg.GroupID != "" {
			delete(q.inFlightGroups, msg.GroupID)
		}
		if q.def.DeadLetterTarget != "" && q.def.MaxReceiveCount > 0 && msg.ReceiveCount >= q.def.MaxReceiveCount {
			deadLettered = append(deadLettered, msg)
			continue
		}
		msg.ReceiptHandle = ""
		q.ready.PushBack(msg)
		requeued++
	}
	if requeued > 0 {
		q.cond.Broadcast()
	}
	return requeued, deadLettered
}

// Close releases every blocked Receive call, used during shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
