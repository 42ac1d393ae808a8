package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Engine owns every queue in one instance and runs the background reaper
// that expires visibility timeouts and performs dead-letter redrive.
type Engine struct {
	mu     sync.RWMutex
	queues map[string]*Queue
	log    *logrus.Entry

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewEngine constructs a queue engine. Call Run to start the reaper
// goroutine once the engine is wired into the provider lifecycle.
func NewEngine(log *logrus.Entry) *Engine {
	return &Engine{
		queues: make(map[string]*Queue),
		log:    log,
		stop:   make(chan struct{}),
	}
}

// CreateQueue registers a new queue definition.
func (e *Engine) CreateQueue(def QueueDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.queues[def.Name]; exists {
		return ldkerr.Conflict("QueueAlreadyExists", "queue already exists: "+def.Name)
	}
	e.queues[def.Name] = newQueue(def)
	return nil
}

// DeleteQueue removes a queue, releasing any blocked receivers.
func (e *Engine) DeleteQueue(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[name]
	if !ok {
		return ldkerr.NotFound("QueueDoesNotExist", "queue not found: "+name)
	}
	q.Close()
	delete(e.queues, name)
	return nil
}

// Queue looks up a queue by name.
func (e *Engine) Queue(name string) (*Queue, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	q, ok := e.queues[name]
	if !ok {
		return nil, ldkerr.NotFound("QueueDoesNotExist", "queue not found: "+name)
	}
	return q, nil
}

// ListQueues returns every registered queue name.
func (e *Engine) ListQueues() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.queues))
	for name := range e.queues {
		names = append(names, name)
	}
	return names
}

// SendBatchEntry is one entry of a SendMessageBatch request.
type SendBatchEntry struct {
	ID         string
	Body       string
	Attributes map[string]string
	GroupID    string
	DedupID    string
	Delay      time.Duration
}

// SendBatchResultEntry pairs a batch entry's id with its outcome.
type SendBatchResultEntry struct {
	ID     string
	Result SendResult
}

// SendBatch sends each entry independently, collecting per-entry failures
// rather than aborting the whole batch (the batch wire contract every
// queue/object operation shares).
func (e *Engine) SendBatch(queueName string, entries []SendBatchEntry) ([]SendBatchResultEntry, []BatchFailure, error) {
	q, err := e.Queue(queueName)
	if err != nil {
		return nil, nil, err
	}
	var ok []SendBatchResultEntry
	var failed []BatchFailure
	for _, entry := range entries {
		res, err := q.Send(entry.Body, entry.Attributes, entry.GroupID, entry.DedupID, entry.Delay)
		if err != nil {
			failed = append(failed, BatchFailure{ID: entry.ID, Code: "InternalError", Message: err.Error()})
			continue
		}
		ok = append(ok, SendBatchResultEntry{ID: entry.ID, Result: res})
	}
	return ok, failed, nil
}

// DeleteBatch deletes each receipt handle independently.
func (e *Engine) DeleteBatch(queueName string, ids map[string]string) ([]string, []BatchFailure, error) {
	q, err := e.Queue(queueName)
	if err != nil {
		return nil, nil, err
	}
	var okIDs []string
	var failed []BatchFailure
	for id, handle := range ids {
		if err := q.Delete(handle); err != nil {
			failed = append(failed, BatchFailure{ID: id, Code: "ReceiptHandleIsInvalid", Message: err.Error()})
			continue
		}
		okIDs = append(okIDs, id)
	}
	return okIDs, failed, nil
}

// ChangeVisibilityBatch adjusts visibility for each entry independently.
func (e *Engine) ChangeVisibilityBatch(queueName string, entries []ChangeVisibilityEntry, ids []string) ([]string, []BatchFailure, error) {
	q, err := e.Queue(queueName)
	if err != nil {
		return nil, nil, err
	}
	var okIDs []string
	var failed []BatchFailure
	for i, entry := range entries {
		id := entry.ReceiptHandle
		if i < len(ids) {
			id = ids[i]
		}
		if err := q.ChangeVisibility(entry.ReceiptHandle, entry.Timeout); err != nil {
			failed = append(failed, BatchFailure{ID: id, Code: "ReceiptHandleIsInvalid", Message: err.Error()})
			continue
		}
		okIDs = append(okIDs, id)
	}
	return okIDs, failed, nil
}

// ReceiveForTrigger implements fabric.QueuePoller: it long-polls a queue on
// behalf of a queue-to-function event source mapping.
func (e *Engine) ReceiveForTrigger(ctx context.Context, queueName string, maxMessages int, wait time.Duration) ([]*Message, error) {
	q, err := e.Queue(queueName)
	if err != nil {
		return nil, err
	}
	return q.Receive(ReceiveOptions{MaxMessages: maxMessages, WaitTime: wait}), nil
}

// DeleteForTrigger implements fabric.QueuePoller's acknowledgement half.
func (e *Engine) DeleteForTrigger(queueName, receiptHandle string) error {
	q, err := e.Queue(queueName)
	if err != nil {
		return err
	}
	return q.Delete(receiptHandle)
}

// Run starts the background reaper, sweeping every queue at the given
// interval for expired visibility leases and dead-letter redrive. It returns
// at once; the reaper runs until ctx is cancelled or Shutdown is called.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
				e.sweepOnce()
			}
		}
	}()
}

func (e *Engine) sweepOnce() {
	now := time.Now()
	e.mu.RLock()
	snapshot := make(map[string]*Queue, len(e.queues))
	for name, q := range e.queues {
		snapshot[name] = q
	}
	e.mu.RUnlock()

	for name, q := range snapshot {
		requeued, deadLettered := q.sweepExpired(now)
		if requeued > 0 && e.log != nil {
			e.log.WithField("queue", name).WithField("count", requeued).Debug("requeued expired in-flight messages")
		}
		if len(deadLettered) == 0 {
			continue
		}
		dlq, err := e.Queue(q.def.DeadLetterTarget)
		if err != nil {
			if e.log != nil {
				e.log.WithError(err).WithField("queue", name).Warn("dead-letter target missing, dropping messages")
			}
			continue
		}
		for _, msg := range deadLettered {
			if _, err := dlq.Send(msg.Body, msg.Attributes, msg.GroupID, msg.DedupID, 0); err != nil && e.log != nil {
				e.log.WithError(err).Warn("failed to transfer message to dead-letter queue")
			}
		}
		if e.log != nil {
			e.log.WithField("from", name).WithField("to", q.def.DeadLetterTarget).
				WithField("count", len(deadLettered)).Info("transferred messages to dead-letter queue")
		}
	}
}

// Shutdown stops the reaper and releases every blocked receiver.
func (e *Engine) Shutdown() {
	close(e.stop)
	e.wg.Wait()
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, q := range e.queues {
		q.Close()
	}
}

// Reset drops every queue's messages, used by /_ldk/reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, q := range e.queues {
		def := q.def
		q.Close()
		e.queues[name] = newQueue(def)
	}
}
