package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	queueDeliveries []string
	invocations     []string
}

func (d *recordingDispatcher) DeliverToQueue(queueName, body string, attrs map[string]string) error {
	d.queueDeliveries = append(d.queueDeliveries, queueName+":"+body)
	return nil
}

func (d *recordingDispatcher) Invoke(functionName string, event interface{}) error {
	d.invocations = append(d.invocations, functionName)
	return nil
}

func TestPublishFansOutToSubscribedTargets(t *testing.T) {
	d := &recordingDispatcher{}
	e := NewEngine(d, nil)
	require.NoError(t, e.CreateTopic("orders"))
	require.NoError(t, e.Subscribe("orders", Target{ID: "t1", Kind: TargetQueue, Name: "order-queue"}))
	require.NoError(t, e.Subscribe("orders", Target{ID: "t2", Kind: TargetFunction, Name: "order-handler"}))

	require.NoError(t, e.Publish("orders", Publication{Body: "new order"}))

	require.Equal(t, []string{"order-queue:new order"}, d.queueDeliveries)
	require.Equal(t, []string{"order-handler"}, d.invocations)
}

func TestPublishHonorsFilterPolicy(t *testing.T) {
	d := &recordingDispatcher{}
	e := NewEngine(d, nil)
	require.NoError(t, e.CreateTopic("orders"))
	require.NoError(t, e.Subscribe("orders", Target{
		ID:         "t1",
		Kind:       TargetQueue,
		Name:       "priority-queue",
		FilterJSON: `{"priority": ["high"]}`,
	}))

	require.NoError(t, e.Publish("orders", Publication{Body: "low", Attributes: map[string]string{"priority": "low"}}))
	require.Empty(t, d.queueDeliveries)

	require.NoError(t, e.Publish("orders", Publication{Body: "high", Attributes: map[string]string{"priority": "high"}}))
	require.Equal(t, []string{"priority-queue:high"}, d.queueDeliveries)
}

func TestEventRuleMatchingDispatchesToTargets(t *testing.T) {
	d := &recordingDispatcher{}
	e := NewEngine(d, nil)
	require.NoError(t, e.PutRule(EventRule{
		Name:         "on-order-created",
		EventBusName: "default",
		EventPattern: map[string]interface{}{"status": "CREATED"},
		Enabled:      true,
		Targets:      []Target{{Kind: TargetFunction, Name: "notify"}},
	}))

	e.PutEvent("default", Event{Source: "orders", Detail: map[string]interface{}{"status": "CREATED"}})
	e.PutEvent("default", Event{Source: "orders", Detail: map[string]interface{}{"status": "SHIPPED"}})

	require.Equal(t, []string{"notify"}, d.invocations)
}

func TestPatternPrefixAndAnythingBut(t *testing.T) {
	pattern := map[string]interface{}{
		"name":   map[string]interface{}{"prefix": "ord-"},
		"status": map[string]interface{}{"anything-but": []interface{}{"CANCELLED"}},
	}
	require.True(t, Match(pattern, map[string]interface{}{"name": "ord-123", "status": "CREATED"}))
	require.False(t, Match(pattern, map[string]interface{}{"name": "inv-123", "status": "CREATED"}))
	require.False(t, Match(pattern, map[string]interface{}{"name": "ord-123", "status": "CANCELLED"}))
}

func TestScheduleToCronRate(t *testing.T) {
	spec, err := scheduleToCron("rate(5 minutes)")
	require.NoError(t, err)
	require.Equal(t, "@every 5m", spec)
}
