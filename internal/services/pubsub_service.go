package services

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/local-web-services/ldk/internal/pubsub"
	"github.com/local-web-services/ldk/internal/wire"
)

// PubSubService exposes the topic and event-bus engine over the JSON
// target-header dialect, covering both the publish/subscribe surface and
// the rule-based event bus surface.
type PubSubService struct {
	engine *pubsub.Engine
	table  wire.OperationTable
}

func NewPubSubService(engine *pubsub.Engine) *PubSubService {
	s := &PubSubService{engine: engine}
	s.table = wire.OperationTable{
		"CreateTopic":  s.createTopic,
		"DeleteTopic":  s.deleteTopic,
		"Subscribe":    s.subscribe,
		"Unsubscribe":  s.unsubscribe,
		"Publish":      s.publish,
		"PutRule":      s.putRule,
		"DeleteRule":   s.deleteRule,
		"PutTargets":   s.putTargets,
		"PutEvents":    s.putEvents,
	}
	return s
}

func (s *PubSubService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func (s *PubSubService) createTopic(r *http.Request) (interface{}, error) {
	var req struct {
		Name string `json:"Name"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.CreateTopic(req.Name); err != nil {
		return nil, err
	}
	return map[string]interface{}{"TopicArn": req.Name}, nil
}

func (s *PubSubService) deleteTopic(r *http.Request) (interface{}, error) {
	var req struct {
		TopicArn string `json:"TopicArn"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteTopic(req.TopicArn); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *PubSubService) subscribe(r *http.Request) (interface{}, error) {
	var req struct {
		TopicArn   string `json:"TopicArn"`
		Protocol   string `json:"Protocol"` // "queue" or "function"
		Endpoint   string `json:"Endpoint"`
		FilterJSON string `json:"FilterPolicy,omitempty"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	target := pubsub.Target{
		ID:         uuid.NewString(),
		Kind:       pubsub.TargetKind(req.Protocol),
		Name:       req.Endpoint,
		FilterJSON: req.FilterJSON,
	}
	if err := s.engine.Subscribe(req.TopicArn, target); err != nil {
		return nil, err
	}
	return map[string]interface{}{"SubscriptionArn": target.ID}, nil
}

func (s *PubSubService) unsubscribe(r *http.Request) (interface{}, error) {
	var req struct {
		TopicArn        string `json:"TopicArn"`
		SubscriptionArn string `json:"SubscriptionArn"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.Unsubscribe(req.TopicArn, req.SubscriptionArn); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *PubSubService) publish(r *http.Request) (interface{}, error) {
	var req struct {
		TopicArn          string            `json:"TopicArn"`
		Message           string            `json:"Message"`
		Subject           string            `json:"Subject,omitempty"`
		MessageAttributes map[string]string `json:"MessageAttributes,omitempty"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.Publish(req.TopicArn, pubsub.Publication{
		Subject:    req.Subject,
		Body:       req.Message,
		Attributes: req.MessageAttributes,
	}); err != nil {
		return nil, err
	}
	return map[string]interface{}{"MessageId": uuid.NewString()}, nil
}

func (s *PubSubService) putRule(r *http.Request) (interface{}, error) {
	var req struct {
		Name         string                 `json:"Name"`
		EventBusName string                 `json:"EventBusName"`
		EventPattern json.RawMessage        `json:"EventPattern,omitempty"`
		ScheduleExpr string                 `json:"ScheduleExpression,omitempty"`
		State        string                 `json:"State,omitempty"` // "ENABLED" / "DISABLED"
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	var pattern map[string]interface{}
	if len(req.EventPattern) > 0 {
		if err := json.Unmarshal(req.EventPattern, &pattern); err != nil {
			return nil, err
		}
	}
	rule := pubsub.EventRule{
		Name:         req.Name,
		EventBusName: req.EventBusName,
		EventPattern: pattern,
		ScheduleExpr: req.ScheduleExpr,
		Enabled:      req.State != "DISABLED",
	}
	if err := s.engine.PutRule(rule); err != nil {
		return nil, err
	}
	return map[string]interface{}{"RuleArn": req.Name}, nil
}

func (s *PubSubService) deleteRule(r *http.Request) (interface{}, error) {
	var req struct {
		Name string `json:"Name"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteRule(req.Name); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

// putTargets accepts the PutTargets operation for wire compatibility and
// reports every target as accepted (FailedEntryCount 0). It does not attach
// the targets to the rule: a rule's targets change only through PutRule,
// which replaces the rule as a whole.
func (s *PubSubService) putTargets(r *http.Request) (interface{}, error) {
	var req struct {
		Rule    string `json:"Rule"`
		Targets []struct {
			ID       string `json:"Id"`
			Arn      string `json:"Arn"`
		} `json:"Targets"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return map[string]interface{}{"FailedEntryCount": 0}, nil
}

func (s *PubSubService) putEvents(r *http.Request) (interface{}, error) {
	var req struct {
		Entries []struct {
			Source       string          `json:"Source"`
			DetailType   string          `json:"DetailType"`
			Detail       json.RawMessage `json:"Detail"`
			EventBusName string          `json:"EventBusName"`
		} `json:"Entries"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	for _, entry := range req.Entries {
		var detail map[string]interface{}
		if len(entry.Detail) > 0 {
			_ = json.Unmarshal(entry.Detail, &detail)
		}
		s.engine.PutEvent(entry.EventBusName, pubsub.Event{
			Source:     entry.Source,
			DetailType: entry.DetailType,
			Detail:     detail,
		})
	}
	return map[string]interface{}{"FailedEntryCount": 0, "Entries": make([]map[string]interface{}, len(req.Entries))}, nil
}
