package services

import (
	"net/http"
	"time"

	"github.com/local-web-services/ldk/internal/queue"
	"github.com/local-web-services/ldk/internal/wire"
)

// QueueService exposes the message queue engine over both the JSON
// target-header dialect and the query/form Action dialect.
type QueueService struct {
	engine *queue.Engine
	table  wire.OperationTable
}

func NewQueueService(engine *queue.Engine) *QueueService {
	s := &QueueService{engine: engine}
	s.table = wire.OperationTable{
		"CreateQueue":            s.createQueue,
		"DeleteQueue":            s.deleteQueue,
		"ListQueues":             s.listQueues,
		"GetQueueAttributes":     s.getQueueAttributes,
		"SendMessage":            s.sendMessage,
		"SendMessageBatch":       s.sendMessageBatch,
		"ReceiveMessage":         s.receiveMessage,
		"DeleteMessage":          s.deleteMessage,
		"DeleteMessageBatch":     s.deleteMessageBatch,
		"ChangeMessageVisibility": s.changeMessageVisibility,
	}
	return s
}

func (s *QueueService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func (s *QueueService) createQueue(r *http.Request) (interface{}, error) {
	var req struct {
		QueueName         string `json:"QueueName"`
		FifoQueue         bool   `json:"FifoQueue"`
		VisibilityTimeout int    `json:"VisibilityTimeout"`
		MessageRetention  int    `json:"MessageRetentionPeriod"`
		ContentBasedDedup bool   `json:"ContentBasedDeduplication"`
		DedupWindow       int    `json:"DeduplicationWindowSeconds"`
		DeadLetterTarget  string `json:"RedrivePolicyDeadLetterTargetArn"`
		MaxReceiveCount   int    `json:"RedrivePolicyMaxReceiveCount"`
		DelaySeconds      int    `json:"DelaySeconds"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	kind := queue.KindStandard
	if req.FifoQueue {
		kind = queue.KindFIFO
	}
	def := queue.QueueDef{
		Name:              req.QueueName,
		Kind:              kind,
		VisibilityTimeout: durationOrDefault(req.VisibilityTimeout, 30*time.Second),
		MessageRetention:  durationOrDefault(req.MessageRetention, 4*24*time.Hour),
		ContentBasedDedup: req.ContentBasedDedup,
		DedupWindow:       durationOrDefault(req.DedupWindow, 5*time.Minute),
		DeadLetterTarget:  req.DeadLetterTarget,
		MaxReceiveCount:   req.MaxReceiveCount,
		DelaySeconds:      time.Duration(req.DelaySeconds) * time.Second,
	}
	if err := s.engine.CreateQueue(def); err != nil {
		return nil, err
	}
	return map[string]interface{}{"QueueUrl": def.Name}, nil
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func (s *QueueService) deleteQueue(r *http.Request) (interface{}, error) {
	var req struct {
		QueueUrl string `json:"QueueUrl"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteQueue(req.QueueUrl); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *QueueService) listQueues(r *http.Request) (interface{}, error) {
	return map[string]interface{}{"QueueUrls": s.engine.ListQueues()}, nil
}

func (s *QueueService) getQueueAttributes(r *http.Request) (interface{}, error) {
	var req struct {
		QueueUrl string `json:"QueueUrl"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	q, err := s.engine.Queue(req.QueueUrl)
	if err != nil {
		return nil, err
	}
	visible, inFlight := q.ApproximateCount()
	return map[string]interface{}{
		"Attributes": map[string]interface{}{
			"ApproximateNumberOfMessages":           visible,
			"ApproximateNumberOfMessagesNotVisible": inFlight,
		},
	}, nil
}

func (s *QueueService) sendMessage(r *http.Request) (interface{}, error) {
	var req struct {
		QueueUrl               string            `json:"QueueUrl"`
		MessageBody            string            `json:"MessageBody"`
		MessageAttributes      map[string]string `json:"MessageAttributes,omitempty"`
		MessageGroupId         string            `json:"MessageGroupId,omitempty"`
		MessageDeduplicationId string            `json:"MessageDeduplicationId,omitempty"`
		DelaySeconds           int               `json:"DelaySeconds,omitempty"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	q, err := s.engine.Queue(req.QueueUrl)
	if err != nil {
		return nil, err
	}
	res, err := q.Send(req.MessageBody, req.MessageAttributes, req.MessageGroupId, req.MessageDeduplicationId, time.Duration(req.DelaySeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"MessageId": res.MessageID, "SequenceNumber": res.SequenceNumber}, nil
}

func (s *QueueService) sendMessageBatch(r *http.Request) (interface{}, error) {
	var req struct {
		QueueUrl string `json:"QueueUrl"`
		Entries  []struct {
			Id                     string            `json:"Id"`
			MessageBody            string            `json:"MessageBody"`
			MessageAttributes      map[string]string `json:"MessageAttributes,omitempty"`
			MessageGroupId         string            `json:"MessageGroupId,omitempty"`
			MessageDeduplicationId string            `json:"MessageDeduplicationId,omitempty"`
			DelaySeconds           int               `json:"DelaySeconds,omitempty"`
		} `json:"Entries"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	entries := make([]queue.SendBatchEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = queue.SendBatchEntry{
			ID:         e.Id,
			Body:       e.MessageBody,
			Attributes: e.MessageAttributes,
			GroupID:    e.MessageGroupId,
			DedupID:    e.MessageDeduplicationId,
			Delay:      time.Duration(e.DelaySeconds) * time.Second,
		}
	}
	ok, failed, err := s.engine.SendBatch(req.QueueUrl, entries)
	if err != nil {
		return nil, err
	}
	successful := make([]map[string]interface{}, len(ok))
	for i, e := range ok {
		successful[i] = map[string]interface{}{"Id": e.ID, "MessageId": e.Result.MessageID, "SequenceNumber": e.Result.SequenceNumber}
	}
	return map[string]interface{}{"Successful": successful, "Failed": failed}, nil
}

func (s *QueueService) receiveMessage(r *http.Request) (interface{}, error) {
	var req struct {
		QueueUrl            string `json:"QueueUrl"`
		MaxNumberOfMessages int    `json:"MaxNumberOfMessages"`
		WaitTimeSeconds     int    `json:"WaitTimeSeconds"`
		VisibilityTimeout   int    `json:"VisibilityTimeout"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	q, err := s.engine.Queue(req.QueueUrl)
	if err != nil {
		return nil, err
	}
	msgs := q.Receive(queue.ReceiveOptions{
		MaxMessages:       req.MaxNumberOfMessages,
		WaitTime:          time.Duration(req.WaitTimeSeconds) * time.Second,
		VisibilityTimeout: time.Duration(req.VisibilityTimeout) * time.Second,
	})
	return map[string]interface{}{"Messages": msgs}, nil
}

func (s *QueueService) deleteMessage(r *http.Request) (interface{}, error) {
	var req struct {
		QueueUrl      string `json:"QueueUrl"`
		ReceiptHandle string `json:"ReceiptHandle"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	q, err := s.engine.Queue(req.QueueUrl)
	if err != nil {
		return nil, err
	}
	if err := q.Delete(req.ReceiptHandle); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *QueueService) deleteMessageBatch(r *http.Request) (interface{}, error) {
	var req struct {
		QueueUrl string `json:"QueueUrl"`
		Entries  []struct {
			Id            string `json:"Id"`
			ReceiptHandle string `json:"ReceiptHandle"`
		} `json:"Entries"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(req.Entries))
	for _, e := range req.Entries {
		ids[e.Id] = e.ReceiptHandle
	}
	ok, failed, err := s.engine.DeleteBatch(req.QueueUrl, ids)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Successful": ok, "Failed": failed}, nil
}

func (s *QueueService) changeMessageVisibility(r *http.Request) (interface{}, error) {
	var req struct {
		QueueUrl          string `json:"QueueUrl"`
		ReceiptHandle     string `json:"ReceiptHandle"`
		VisibilityTimeout int    `json:"VisibilityTimeout"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	q, err := s.engine.Queue(req.QueueUrl)
	if err != nil {
		return nil, err
	}
	if err := q.ChangeVisibility(req.ReceiptHandle, time.Duration(req.VisibilityTimeout)*time.Second); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}
