// Package fabric implements component J: the event propagation fabric that
// wires every other engine's change notifications to function invocations
// and queue deliveries, without any engine importing another directly.
// kv, queue, object, and pubsub each define a small sink/dispatcher
// interface; Fabric implements all of them and is passed to each engine's
// constructor, avoiding an import cycle between engines that each need to
// notify the others.
package fabric

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/local-web-services/ldk/internal/kv"
	"github.com/local-web-services/ldk/internal/queue"
)

// Invoker is the shared "invoke(function_name, event)" abstraction every
// notification path in the fabric funnels through.
type Invoker interface {
	Invoke(ctx context.Context, name string, event interface{}) (interface{}, error)
}

// KVTrigger binds a table's stream to a function, mirroring a managed
// stream-to-function event source mapping.
type KVTrigger struct {
	TableName    string
	FunctionName string
}

// QueueTrigger binds a queue to a function, polled by the fabric itself.
type QueueTrigger struct {
	QueueName    string
	FunctionName string
	BatchSize    int
}

// Fabric is the central hub: it batches KV stream records over a short
// window (spec.md §4.6's batched-dispatch design note), runs one poller
// goroutine per queue trigger, and forwards object/pubsub events directly
// since those are already discrete occurrences rather than a stream.
type Fabric struct {
	mu            sync.RWMutex
	invoker       Invoker
	log           *logrus.Entry
	batchWindow   time.Duration
	kvTriggers    map[string][]string // table name -> function names
	pending       map[string][]kv.StreamRecord
	queueTriggers []QueueTrigger
	queuePoller   QueuePoller
	queueSend     queueSendFunc
	stop          chan struct{}
	wg            sync.WaitGroup
}

// QueuePoller is the minimal surface the fabric needs from the queue engine
// to drive queue-to-function event source mappings.
type QueuePoller interface {
	ReceiveForTrigger(ctx context.Context, queueName string, maxMessages int, wait time.Duration) ([]*queue.Message, error)
	DeleteForTrigger(queueName, receiptHandle string) error
}

func New(invoker Invoker, log *logrus.Entry, batchWindow time.Duration) *Fabric {
	if batchWindow <= 0 {
		batchWindow = 100 * time.Millisecond
	}
	return &Fabric{
		invoker:     invoker,
		log:         log,
		batchWindow: batchWindow,
		kvTriggers:  make(map[string][]string),
		pending:     make(map[string][]kv.StreamRecord),
		stop:        make(chan struct{}),
	}
}

// AddKVTrigger registers a function to receive batched stream records from a
// table.
func (f *Fabric) AddKVTrigger(t KVTrigger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kvTriggers[t.TableName] = append(f.kvTriggers[t.TableName], t.FunctionName)
}

// EmitKVRecord implements kv.StreamSink: records are queued per table and
// flushed to every subscribed function on the batch window tick, rather
// than invoking once per record.
func (f *Fabric) EmitKVRecord(rec kv.StreamRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.kvTriggers[rec.TableName]) == 0 {
		return
	}
	f.pending[rec.TableName] = append(f.pending[rec.TableName], rec)
}

// EmitObjectEvent implements object.Notifier: object events are forwarded
// immediately since there is no natural batching unit for them.
func (f *Fabric) EmitObjectEvent(bucket, key, eventName string, size int64) {
	// Object-to-function wiring is configured the same way as KV triggers
	// but keyed by "bucket" instead of table name; reuse the same map.
	f.mu.RLock()
	targets := append([]string(nil), f.kvTriggers["bucket:"+bucket]...)
	f.mu.RUnlock()
	for _, fn := range targets {
		f.invokeAndLog(fn, map[string]interface{}{
			"bucket": bucket, "key": key, "event": eventName, "size": size,
		})
	}
}

// AddObjectTrigger registers a function to receive notifications for a bucket.
func (f *Fabric) AddObjectTrigger(bucket, functionName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "bucket:" + bucket
	f.kvTriggers[key] = append(f.kvTriggers[key], functionName)
}

// DeliverToQueue implements pubsub.Dispatcher's queue-delivery half by
// forwarding to the registered queue-send callback.
func (f *Fabric) DeliverToQueue(queueName, body string, attrs map[string]string) error {
	f.mu.RLock()
	send := f.queueSend
	f.mu.RUnlock()
	if send == nil {
		return nil
	}
	return send(queueName, body, attrs)
}

// queueSend is set via SetQueueSend once the queue engine exists, since
// fabric is constructed before the services it glues together (the
// orchestrator's late-bind wiring pattern, spec.md §7).
type queueSendFunc func(queueName, body string, attrs map[string]string) error

func (f *Fabric) SetQueueSend(fn queueSendFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queueSend = fn
}

// Invoke implements pubsub.Dispatcher's function-invocation half.
func (f *Fabric) Invoke(functionName string, event interface{}) error {
	_, err := f.invoker.Invoke(context.Background(), functionName, event)
	return err
}

func (f *Fabric) invokeAndLog(functionName string, event interface{}) {
	if _, err := f.invoker.Invoke(context.Background(), functionName, event); err != nil && f.log != nil {
		f.log.WithError(err).WithField("function", functionName).Warn("fabric invocation failed")
	}
}

// AddQueueTrigger registers a function to be invoked for every message
// received from a queue, and starts a poller goroutine for it once Run is
// called.
func (f *Fabric) AddQueueTrigger(t QueueTrigger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queueTriggers = append(f.queueTriggers, t)
}

// SetQueuePoller wires the queue engine's receive/delete surface in.
func (f *Fabric) SetQueuePoller(p QueuePoller) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queuePoller = p
}

// Run starts the KV batch-flush ticker and every queue trigger's poller
// goroutine. It returns immediately; call Shutdown to stop.
func (f *Fabric) Run(ctx context.Context) {
	f.wg.Add(1)
	go f.runBatchFlush(ctx)

	f.mu.RLock()
	triggers := append([]QueueTrigger(nil), f.queueTriggers...)
	poller := f.queuePoller
	f.mu.RUnlock()

	if poller == nil {
		return
	}
	for _, t := range triggers {
		f.wg.Add(1)
		go f.runQueuePoller(ctx, poller, t)
	}
}

func (f *Fabric) runBatchFlush(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.batchWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case <-ticker.C:
			f.flushKV()
		}
	}
}

func (f *Fabric) flushKV() {
	f.mu.Lock()
	batch := f.pending
	f.pending = make(map[string][]kv.StreamRecord)
	targets := make(map[string][]string, len(f.kvTriggers))
	for k, v := range f.kvTriggers {
		targets[k] = v
	}
	f.mu.Unlock()

	for table, records := range batch {
		if len(records) == 0 {
			continue
		}
		for _, fn := range targets[table] {
			f.invokeAndLog(fn, map[string]interface{}{"table": table, "records": records})
		}
	}
}

func (f *Fabric) runQueuePoller(ctx context.Context, poller QueuePoller, t QueueTrigger) {
	defer f.wg.Done()
	batchSize := t.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		default:
		}

		msgs, err := poller.ReceiveForTrigger(ctx, t.QueueName, batchSize, 5*time.Second)
		if err != nil {
			if f.log != nil {
				f.log.WithError(err).WithField("queue", t.QueueName).Warn("queue trigger poll failed")
			}
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		if _, invokeErr := f.invoker.Invoke(ctx, t.FunctionName, msgs); invokeErr != nil {
			if f.log != nil {
				f.log.WithError(invokeErr).WithField("function", t.FunctionName).Warn("queue-triggered invocation failed")
			}
			continue
		}
		for _, m := range msgs {
			_ = poller.DeleteForTrigger(t.QueueName, m.ReceiptHandle)
		}
	}
}

// Shutdown stops every background goroutine the fabric started.
func (f *Fabric) Shutdown() {
	close(f.stop)
	f.wg.Wait()
}
