// Package services wires each engine (component D-I) to its wire-protocol
// adapter (component K) and exposes the result as an http.Handler the
// provider orchestrator (component M) can register and health-check.
package services

import (
	"net/http"

	"github.com/local-web-services/ldk/internal/codec"
	"github.com/local-web-services/ldk/internal/expr"
	"github.com/local-web-services/ldk/internal/kv"
	"github.com/local-web-services/ldk/internal/ldkerr"
	"github.com/local-web-services/ldk/internal/wire"
)

// KVService exposes the key-value engine over the JSON target-header
// dialect, the way the teacher's domain services expose a single JSON API
// surface per backend.
type KVService struct {
	engine *kv.Engine
	table  wire.OperationTable
}

func NewKVService(engine *kv.Engine) *KVService {
	s := &KVService{engine: engine}
	s.table = wire.OperationTable{
		"CreateTable":   s.createTable,
		"DeleteTable":   s.deleteTable,
		"DescribeTable": s.describeTable,
		"ListTables":    s.listTables,
		"PutItem":       s.putItem,
		"GetItem":       s.getItem,
		"UpdateItem":    s.updateItem,
		"DeleteItem":    s.deleteItem,
		"Query":         s.query,
		"Scan":          s.scan,
	}
	return s
}

func (s *KVService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

type createTableRequest struct {
	TableName            string `json:"TableName"`
	PartitionKey         kv.KeyAttr `json:"PartitionKey"`
	SortKey              *kv.KeyAttr `json:"SortKey,omitempty"`
	Indexes              []kv.IndexDef `json:"Indexes,omitempty"`
	StreamViewType       string `json:"StreamViewType,omitempty"`
}

func (s *KVService) createTable(r *http.Request) (interface{}, error) {
	var req createTableRequest
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	def := kv.TableDef{
		Name:         req.TableName,
		PartitionKey: req.PartitionKey,
		SortKey:      req.SortKey,
		Indexes:      req.Indexes,
	}
	if req.StreamViewType != "" {
		def.Stream = &kv.StreamDef{ViewType: kv.StreamViewType(req.StreamViewType)}
	}
	desc, err := s.engine.CreateTable(def)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"TableDescription": desc}, nil
}

func (s *KVService) deleteTable(r *http.Request) (interface{}, error) {
	var req struct {
		TableName string `json:"TableName"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteTable(req.TableName); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *KVService) describeTable(r *http.Request) (interface{}, error) {
	var req struct {
		TableName string `json:"TableName"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	desc, err := s.engine.DescribeTable(req.TableName)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Table": desc}, nil
}

func (s *KVService) listTables(r *http.Request) (interface{}, error) {
	return map[string]interface{}{"TableNames": s.engine.ListTables()}, nil
}

type itemRequest struct {
	TableName                string                 `json:"TableName"`
	Item                     codec.Item             `json:"Item,omitempty"`
	Key                      codec.Item             `json:"Key,omitempty"`
	ConditionExpression      string                 `json:"ConditionExpression,omitempty"`
	UpdateExpression         string                 `json:"UpdateExpression,omitempty"`
	ExpressionAttributeNames map[string]string      `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeVals  map[string]codec.Value  `json:"ExpressionAttributeValues,omitempty"`
}

func (req *itemRequest) placeholders() expr.Placeholders {
	return expr.Placeholders{Names: req.ExpressionAttributeNames, Values: req.ExpressionAttributeVals}
}

func (s *KVService) tableAndKeyParts(tableName string, key codec.Item) (*kv.Table, codec.Value, *codec.Value, error) {
	table, err := s.engine.Table(tableName)
	if err != nil {
		return nil, codec.Value{}, nil, err
	}
	pk, ok := key[table.DefPartitionKeyName()]
	if !ok {
		return nil, codec.Value{}, nil, ldkerr.Client("ValidationException", "missing partition key in request")
	}
	var sk *codec.Value
	if name := table.DefSortKeyName(); name != "" {
		if v, ok := key[name]; ok {
			sk = &v
		}
	}
	return table, pk, sk, nil
}

func (s *KVService) putItem(r *http.Request) (interface{}, error) {
	var req itemRequest
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	table, err := s.engine.Table(req.TableName)
	if err != nil {
		return nil, err
	}
	var cond expr.Node
	if req.ConditionExpression != "" {
		cond, err = expr.ParseCondition(req.ConditionExpression)
		if err != nil {
			return nil, ldkerr.Client("ValidationException", err.Error())
		}
	}
	_, err = table.Put(req.Item, kv.PutOptions{Condition: cond, Placeholders: req.placeholders()})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *KVService) getItem(r *http.Request) (interface{}, error) {
	var req itemRequest
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	table, pk, sk, err := s.tableAndKeyParts(req.TableName, req.Key)
	if err != nil {
		return nil, err
	}
	item, found, err := table.Get(pk, sk, kv.GetOptions{StrongConsistency: true})
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]interface{}{}, nil
	}
	return map[string]interface{}{"Item": item}, nil
}

func (s *KVService) deleteItem(r *http.Request) (interface{}, error) {
	var req itemRequest
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	table, pk, sk, err := s.tableAndKeyParts(req.TableName, req.Key)
	if err != nil {
		return nil, err
	}
	var cond expr.Node
	if req.ConditionExpression != "" {
		cond, err = expr.ParseCondition(req.ConditionExpression)
		if err != nil {
			return nil, ldkerr.Client("ValidationException", err.Error())
		}
	}
	_, _, err = table.Delete(pk, sk, kv.DeleteOptions{Condition: cond, Placeholders: req.placeholders()})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *KVService) updateItem(r *http.Request) (interface{}, error) {
	var req itemRequest
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	table, pk, sk, err := s.tableAndKeyParts(req.TableName, req.Key)
	if err != nil {
		return nil, err
	}
	actions, err := expr.ParseUpdate(req.UpdateExpression)
	if err != nil {
		return nil, ldkerr.Client("ValidationException", err.Error())
	}
	var cond expr.Node
	if req.ConditionExpression != "" {
		cond, err = expr.ParseCondition(req.ConditionExpression)
		if err != nil {
			return nil, ldkerr.Client("ValidationException", err.Error())
		}
	}
	_, newItem, err := table.Update(pk, sk, kv.UpdateOptions{UpdateActions: actions, Condition: cond, Placeholders: req.placeholders()})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Attributes": newItem}, nil
}

type queryRequest struct {
	TableName                string            `json:"TableName"`
	IndexName                string            `json:"IndexName,omitempty"`
	KeyConditionExpression   string            `json:"KeyConditionExpression"`
	FilterExpression         string            `json:"FilterExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeVals  map[string]codec.Value `json:"ExpressionAttributeValues,omitempty"`
	Limit                    int               `json:"Limit,omitempty"`
	ExclusiveStartKey        string            `json:"ExclusiveStartKey,omitempty"`
	ScanIndexForward         *bool             `json:"ScanIndexForward,omitempty"`
}

func (s *KVService) query(r *http.Request) (interface{}, error) {
	var req queryRequest
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	table, err := s.engine.Table(req.TableName)
	if err != nil {
		return nil, err
	}
	ph := expr.Placeholders{Names: req.ExpressionAttributeNames, Values: req.ExpressionAttributeVals}

	pkValue, skCond, err := parseKeyCondition(req.KeyConditionExpression, ph)
	if err != nil {
		return nil, err
	}
	var filter expr.Node
	if req.FilterExpression != "" {
		filter, err = expr.ParseCondition(req.FilterExpression)
		if err != nil {
			return nil, ldkerr.Client("ValidationException", err.Error())
		}
	}
	forward := true
	if req.ScanIndexForward != nil {
		forward = *req.ScanIndexForward
	}
	items, lastKey, err := table.Query(kv.QueryOptions{
		IndexName:         req.IndexName,
		PartitionKey:      pkValue,
		SortKeyCondition:  skCond,
		Filter:            filter,
		Placeholders:      ph,
		Limit:             req.Limit,
		ExclusiveStartKey: req.ExclusiveStartKey,
		ScanForward:       forward,
		StrongConsistency: req.IndexName == "",
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Items": items, "Count": len(items), "LastEvaluatedKey": lastKey}, nil
}

type scanRequest struct {
	TableName                string            `json:"TableName"`
	FilterExpression         string            `json:"FilterExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeVals  map[string]codec.Value `json:"ExpressionAttributeValues,omitempty"`
	Limit                    int    `json:"Limit,omitempty"`
	ExclusiveStartKey        string `json:"ExclusiveStartKey,omitempty"`
}

func (s *KVService) scan(r *http.Request) (interface{}, error) {
	var req scanRequest
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	table, err := s.engine.Table(req.TableName)
	if err != nil {
		return nil, err
	}
	ph := expr.Placeholders{Names: req.ExpressionAttributeNames, Values: req.ExpressionAttributeVals}
	var filter expr.Node
	if req.FilterExpression != "" {
		filter, err = expr.ParseCondition(req.FilterExpression)
		if err != nil {
			return nil, ldkerr.Client("ValidationException", err.Error())
		}
	}
	items, lastKey, err := table.Scan(kv.ScanOptions{Filter: filter, Placeholders: ph, Limit: req.Limit, ExclusiveStartKey: req.ExclusiveStartKey})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Items": items, "Count": len(items), "LastEvaluatedKey": lastKey}, nil
}

// parseKeyCondition supports the common "pk = :v" and "pk = :v AND sk BETWEEN :lo AND :hi" / "begins_with(sk, :p)" shapes
// by delegating to the expr package's condition parser and evaluating only the sort-key clause per candidate row.
func parseKeyCondition(src string, ph expr.Placeholders) (codec.Value, func(string) bool, error) {
	node, err := expr.ParseCondition(src)
	if err != nil {
		return codec.Value{}, nil, ldkerr.Client("ValidationException", err.Error())
	}
	pk, skCond, err := expr.SplitKeyCondition(node, ph)
	if err != nil {
		return codec.Value{}, nil, ldkerr.Client("ValidationException", err.Error())
	}
	return pk, skCond, nil
}
