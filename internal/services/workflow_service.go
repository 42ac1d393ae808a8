package services

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/local-web-services/ldk/internal/ldkerr"
	"github.com/local-web-services/ldk/internal/wire"
	"github.com/local-web-services/ldk/internal/workflow"
)

// WorkflowService exposes the state-machine orchestrator over the JSON
// target-header dialect.
type WorkflowService struct {
	engine *workflow.Engine
	table  wire.OperationTable
}

func NewWorkflowService(engine *workflow.Engine) *WorkflowService {
	s := &WorkflowService{engine: engine}
	s.table = wire.OperationTable{
		"CreateStateMachine": s.createStateMachine,
		"DeleteStateMachine": s.deleteStateMachine,
		"StartExecution":     s.startExecution,
		"DescribeExecution":  s.describeExecution,
		"ListExecutions":     s.listExecutions,
	}
	return s
}

func (s *WorkflowService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func (s *WorkflowService) createStateMachine(r *http.Request) (interface{}, error) {
	var req struct {
		Name       string          `json:"name"`
		Definition json.RawMessage `json:"definition"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	var def workflow.Definition
	if err := json.Unmarshal(req.Definition, &def); err != nil {
		return nil, ldkerr.Client("InvalidDefinition", "state machine definition must be valid JSON")
	}
	if err := s.engine.CreateStateMachine(req.Name, def); err != nil {
		return nil, err
	}
	return map[string]interface{}{"stateMachineArn": req.Name}, nil
}

func (s *WorkflowService) deleteStateMachine(r *http.Request) (interface{}, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteStateMachine(req.Name); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *WorkflowService) startExecution(r *http.Request) (interface{}, error) {
	var req struct {
		Name  string          `json:"stateMachineName"`
		Input json.RawMessage `json:"input,omitempty"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	exec, err := s.engine.StartExecution(context.Background(), req.Name, req.Input)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"executionArn": exec.ID,
		"startDate":    exec.StartedAt,
	}, nil
}

func (s *WorkflowService) describeExecution(r *http.Request) (interface{}, error) {
	var req struct {
		ExecutionArn string `json:"executionArn"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	exec, err := s.engine.DescribeExecution(req.ExecutionArn)
	if err != nil {
		return nil, err
	}
	return executionView(exec), nil
}

func (s *WorkflowService) listExecutions(r *http.Request) (interface{}, error) {
	var req struct {
		StateMachineName string `json:"stateMachineName"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	execs := s.engine.ListExecutions(req.StateMachineName)
	views := make([]map[string]interface{}, len(execs))
	for i, exec := range execs {
		views[i] = executionView(exec)
	}
	return map[string]interface{}{"executions": views}, nil
}

func executionView(exec *workflow.Execution) map[string]interface{} {
	return map[string]interface{}{
		"executionArn":     exec.ID,
		"stateMachineName": exec.StateMachineName,
		"status":           exec.Status,
		"input":            exec.Input,
		"output":           exec.Output,
		"error":            exec.Error,
		"startDate":        exec.StartedAt,
		"stopDate":         exec.StoppedAt,
		"history":          exec.History,
	}
}
