package pubsub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Dispatcher delivers a matched message/event to its target, implemented by
// the event propagation fabric (component J) and injected at wiring time —
// pubsub never imports fabric directly, for the same reason kv.StreamSink
// exists.
type Dispatcher interface {
	DeliverToQueue(queueName string, body string, attrs map[string]string) error
	Invoke(functionName string, event interface{}) error
}

// Engine owns every topic and event-bus rule for one instance.
type Engine struct {
	mu         sync.RWMutex
	topics     map[string]*Topic
	rules      map[string]*EventRule
	dispatcher Dispatcher
	log        *logrus.Entry
	cron       *cron.Cron
	cronIDs    map[string]cron.EntryID
}

func NewEngine(dispatcher Dispatcher, log *logrus.Entry) *Engine {
	return &Engine{
		topics:     make(map[string]*Topic),
		rules:      make(map[string]*EventRule),
		dispatcher: dispatcher,
		log:        log,
		cron:       cron.New(),
		cronIDs:    make(map[string]cron.EntryID),
	}
}

// Start begins the scheduler goroutine for any scheduled rules registered
// before this call, and for any registered afterward.
func (e *Engine) Start() { e.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (e *Engine) Stop() { <-e.cron.Stop().Done() }

// CreateTopic registers an empty topic.
func (e *Engine) CreateTopic(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.topics[name]; exists {
		return ldkerr.Conflict("TopicAlreadyExists", "topic already exists: "+name)
	}
	e.topics[name] = &Topic{Name: name}
	return nil
}

// DeleteTopic removes a topic and its subscriptions.
func (e *Engine) DeleteTopic(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.topics[name]; !ok {
		return ldkerr.NotFound("NotFound", "topic not found: "+name)
	}
	delete(e.topics, name)
	return nil
}

// Subscribe attaches a target to a topic.
func (e *Engine) Subscribe(topicName string, target Target) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.topics[topicName]
	if !ok {
		return ldkerr.NotFound("NotFound", "topic not found: "+topicName)
	}
	t.Targets = append(t.Targets, target)
	return nil
}

// Unsubscribe removes a target from a topic by subscription id.
func (e *Engine) Unsubscribe(topicName, targetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.topics[topicName]
	if !ok {
		return ldkerr.NotFound("NotFound", "topic not found: "+topicName)
	}
	kept := t.Targets[:0]
	for _, target := range t.Targets {
		if target.ID != targetID {
			kept = append(kept, target)
		}
	}
	t.Targets = kept
	return nil
}

// Publish fans a message out to every target subscribed to topicName whose
// filter policy matches the message attributes, swallowing and logging
// individual delivery failures so one bad target never blocks the rest.
func (e *Engine) Publish(topicName string, pub Publication) error {
	e.mu.RLock()
	t, ok := e.topics[topicName]
	e.mu.RUnlock()
	if !ok {
		return ldkerr.NotFound("NotFound", "topic not found: "+topicName)
	}

	pub.PublishedAt = time.Now()
	attrsAsDetail := attrsToDetail(pub.Attributes)

	for _, target := range t.Targets {
		if target.FilterJSON != "" {
			var pattern map[string]interface{}
			if err := json.Unmarshal([]byte(target.FilterJSON), &pattern); err == nil {
				if !Match(pattern, attrsAsDetail) {
					continue
				}
			}
		}
		e.deliver(target, pub.Body, pub.Attributes)
	}
	return nil
}

func (e *Engine) deliver(target Target, body string, attrs map[string]string) {
	if e.dispatcher == nil {
		return
	}
	var err error
	switch target.Kind {
	case TargetQueue:
		err = e.dispatcher.DeliverToQueue(target.Name, body, attrs)
	case TargetFunction:
		err = e.dispatcher.Invoke(target.Name, map[string]interface{}{"body": body, "attributes": attrs})
	}
	if err != nil && e.log != nil {
		e.log.WithError(err).WithField("target", target.Name).Warn("pubsub delivery failed")
	}
}

func attrsToDetail(attrs map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// PutRule registers or replaces an event-bus rule, scheduling it with cron
// if it carries a schedule expression.
func (e *Engine) PutRule(rule EventRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.cronIDs[rule.Name]; ok {
		e.cron.Remove(existing)
		delete(e.cronIDs, rule.Name)
	}

	r := rule
	e.rules[rule.Name] = &r

	if rule.ScheduleExpr == "" || !rule.Enabled {
		return nil
	}
	spec, err := scheduleToCron(rule.ScheduleExpr)
	if err != nil {
		return ldkerr.Client("ValidationException", err.Error())
	}
	id, err := e.cron.AddFunc(spec, func() { e.fireScheduled(rule.Name) })
	if err != nil {
		return ldkerr.Client("ValidationException", "invalid schedule expression: "+err.Error())
	}
	e.cronIDs[rule.Name] = id
	return nil
}

func (e *Engine) fireScheduled(ruleName string) {
	e.mu.RLock()
	rule, ok := e.rules[ruleName]
	e.mu.RUnlock()
	if !ok {
		return
	}
	ev := Event{Source: "ldk.scheduler", DetailType: "Scheduled Event", Time: time.Now()}
	e.dispatchToRule(*rule, ev)
}

// DeleteRule removes a rule and its scheduler entry, if any.
func (e *Engine) DeleteRule(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[name]; !ok {
		return ldkerr.NotFound("NotFound", "rule not found: "+name)
	}
	if id, ok := e.cronIDs[name]; ok {
		e.cron.Remove(id)
		delete(e.cronIDs, name)
	}
	delete(e.rules, name)
	return nil
}

// PutEvent evaluates ev against every enabled rule on its event bus and
// dispatches to matching rules' targets.
func (e *Engine) PutEvent(eventBusName string, ev Event) {
	e.mu.RLock()
	var matches []EventRule
	for _, r := range e.rules {
		if r.EventBusName == eventBusName && r.Enabled && r.ScheduleExpr == "" && Match(r.EventPattern, ev.Detail) {
			matches = append(matches, *r)
		}
	}
	e.mu.RUnlock()

	for _, r := range matches {
		e.dispatchToRule(r, ev)
	}
}

func (e *Engine) dispatchToRule(rule EventRule, ev Event) {
	if e.dispatcher == nil {
		return
	}
	for _, target := range rule.Targets {
		var err error
		switch target.Kind {
		case TargetFunction:
			err = e.dispatcher.Invoke(target.Name, ev)
		case TargetQueue:
			err = e.dispatcher.DeliverToQueue(target.Name, "", map[string]string{"source": ev.Source, "detail-type": ev.DetailType})
		}
		if err != nil && e.log != nil {
			e.log.WithError(err).WithField("rule", rule.Name).Warn("event rule dispatch failed")
		}
	}
}

// Reset clears every topic and rule, used by /_ldk/reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.cronIDs {
		e.cron.Remove(id)
	}
	e.topics = make(map[string]*Topic)
	e.rules = make(map[string]*EventRule)
	e.cronIDs = make(map[string]cron.EntryID)
}
