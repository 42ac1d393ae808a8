package services

import (
	"net/http"
	"time"

	"github.com/local-web-services/ldk/internal/compute"
	"github.com/local-web-services/ldk/internal/wire"
)

// ComputeService exposes the function-compute runtime over the JSON
// target-header dialect.
type ComputeService struct {
	engine *compute.Engine
	table  wire.OperationTable
}

func NewComputeService(engine *compute.Engine) *ComputeService {
	s := &ComputeService{engine: engine}
	s.table = wire.OperationTable{
		"CreateFunction":     s.createFunction,
		"UpdateFunctionCode": s.updateFunctionCode,
		"GetFunction":        s.getFunction,
		"DeleteFunction":     s.deleteFunction,
		"ListFunctions":      s.listFunctions,
		"Invoke":             s.invoke,
	}
	return s
}

func (s *ComputeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func (s *ComputeService) createFunction(r *http.Request) (interface{}, error) {
	var req struct {
		FunctionName string            `json:"FunctionName"`
		InvokeURL    string            `json:"InvokeUrl"`
		Runtime      string            `json:"Runtime,omitempty"`
		TimeoutSecs  int               `json:"Timeout,omitempty"`
		Environment  map[string]string `json:"Environment,omitempty"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	cfg := compute.FunctionConfig{
		Name:        req.FunctionName,
		InvokeURL:   req.InvokeURL,
		Runtime:     req.Runtime,
		Environment: req.Environment,
	}
	if req.TimeoutSecs > 0 {
		cfg.Timeout = time.Duration(req.TimeoutSecs) * time.Second
	}
	fn, err := s.engine.CreateFunction(cfg)
	if err != nil {
		return nil, err
	}
	return functionView(fn), nil
}

func (s *ComputeService) updateFunctionCode(r *http.Request) (interface{}, error) {
	var req struct {
		FunctionName string `json:"FunctionName"`
		InvokeURL    string `json:"InvokeUrl"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	fn, err := s.engine.UpdateFunctionCode(req.FunctionName, req.InvokeURL)
	if err != nil {
		return nil, err
	}
	return functionView(fn), nil
}

func (s *ComputeService) getFunction(r *http.Request) (interface{}, error) {
	var req struct {
		FunctionName string `json:"FunctionName"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	fn, err := s.engine.GetFunction(req.FunctionName)
	if err != nil {
		return nil, err
	}
	return functionView(fn), nil
}

func (s *ComputeService) deleteFunction(r *http.Request) (interface{}, error) {
	var req struct {
		FunctionName string `json:"FunctionName"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteFunction(req.FunctionName); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *ComputeService) listFunctions(r *http.Request) (interface{}, error) {
	fns := s.engine.ListFunctions()
	views := make([]map[string]interface{}, len(fns))
	for i := range fns {
		views[i] = functionView(&fns[i])
	}
	return map[string]interface{}{"Functions": views}, nil
}

func (s *ComputeService) invoke(r *http.Request) (interface{}, error) {
	var req struct {
		FunctionName string      `json:"FunctionName"`
		Payload      interface{} `json:"Payload"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	out, err := s.engine.Invoke(r.Context(), req.FunctionName, req.Payload)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Payload": out}, nil
}

func functionView(fn *compute.FunctionConfig) map[string]interface{} {
	return map[string]interface{}{
		"FunctionName": fn.Name,
		"InvokeUrl":    fn.InvokeURL,
		"Runtime":      fn.Runtime,
		"Timeout":      int(fn.Timeout / time.Second),
		"Environment":  fn.Environment,
		"Version":      fn.Version,
		"CreatedAt":    fn.CreatedAt,
	}
}
