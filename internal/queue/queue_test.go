package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStandardSendReceiveDelete(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.CreateQueue(QueueDef{Name: "orders", Kind: KindStandard, VisibilityTimeout: time.Second}))
	q, err := e.Queue("orders")
	require.NoError(t, err)

	_, err = q.Send("hello", nil, "", "", 0)
	require.NoError(t, err)

	msgs := q.Receive(ReceiveOptions{MaxMessages: 10})
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Body)

	require.NoError(t, q.Delete(msgs[0].ReceiptHandle))
	visible, inFlight := q.ApproximateCount()
	require.Equal(t, 0, visible)
	require.Equal(t, 0, inFlight)
}

func TestFIFOOrderingAndHeadOfLineBlocking(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.CreateQueue(QueueDef{Name: "orders.fifo", Kind: KindFIFO, VisibilityTimeout: time.Minute}))
	q, _ := e.Queue("orders.fifo")

	_, err := q.Send("first", nil, "group-a", "", 0)
	require.NoError(t, err)
	_, err = q.Send("second", nil, "group-a", "", 0)
	require.NoError(t, err)
	_, err = q.Send("other-group", nil, "group-b", "", 0)
	require.NoError(t, err)

	first := q.Receive(ReceiveOptions{MaxMessages: 10})
	// group-a's first message leases the group; "second" must stay blocked
	// even though it's ready, while group-b's message is unaffected.
	bodies := map[string]bool{}
	for _, m := range first {
		bodies[m.Body] = true
	}
	require.True(t, bodies["first"])
	require.True(t, bodies["other-group"])
	require.False(t, bodies["second"])

	for _, m := range first {
		require.NoError(t, q.Delete(m.ReceiptHandle))
	}
	second := q.Receive(ReceiveOptions{MaxMessages: 10})
	require.Len(t, second, 1)
	require.Equal(t, "second", second[0].Body)
}

func TestFIFOContentBasedDedup(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.CreateQueue(QueueDef{Name: "orders.fifo", Kind: KindFIFO, ContentBasedDedup: true, DedupWindow: time.Minute, VisibilityTimeout: time.Minute}))
	q, _ := e.Queue("orders.fifo")

	res1, err := q.Send("payload", nil, "g1", "dedup-1", 0)
	require.NoError(t, err)
	require.False(t, res1.Deduplicated)

	res2, err := q.Send("payload", nil, "g1", "dedup-1", 0)
	require.NoError(t, err)
	require.True(t, res2.Deduplicated)

	visible, _ := q.ApproximateCount()
	require.Equal(t, 1, visible)
}

func TestDeadLetterTransferAfterMaxReceives(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.CreateQueue(QueueDef{Name: "dlq", Kind: KindStandard, VisibilityTimeout: time.Minute}))
	require.NoError(t, e.CreateQueue(QueueDef{
		Name:              "main",
		Kind:              KindStandard,
		VisibilityTimeout: 10 * time.Millisecond,
		DeadLetterTarget:  "dlq",
		MaxReceiveCount:   2,
	}))

	main, _ := e.Queue("main")
	_, err := main.Send("poison", nil, "", "", 0)
	require.NoError(t, err)

	// receive twice without deleting, each time letting the visibility
	// timeout lapse, to cross MaxReceiveCount.
	for i := 0; i < 2; i++ {
		msgs := main.Receive(ReceiveOptions{MaxMessages: 1})
		require.Len(t, msgs, 1)
		time.Sleep(20 * time.Millisecond)
		requeued, deadLettered := main.sweepExpired(time.Now())
		if i == 0 {
			require.Equal(t, 1, requeued)
			require.Empty(t, deadLettered)
		} else {
			require.Empty(t, requeued)
			require.Len(t, deadLettered, 1)
		}
	}
}
