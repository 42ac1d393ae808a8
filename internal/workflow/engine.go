package workflow

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Engine owns every state machine definition and tracks every execution
// started against them.
type Engine struct {
	mu          sync.RWMutex
	invoker     FunctionInvoker
	machines    map[string]Definition
	executions  map[string]*Execution
}

func NewEngine(invoker FunctionInvoker) *Engine {
	return &Engine{
		invoker:    invoker,
		machines:   make(map[string]Definition),
		executions: make(map[string]*Execution),
	}
}

// CreateStateMachine registers a definition under name.
func (e *Engine) CreateStateMachine(name string, def Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.machines[name]; exists {
		return ldkerr.Conflict("StateMachineAlreadyExists", "state machine already exists: "+name)
	}
	e.machines[name] = def
	return nil
}

// DeleteStateMachine removes a definition.
func (e *Engine) DeleteStateMachine(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.machines[name]; !ok {
		return ldkerr.NotFound("StateMachineDoesNotExist", "state machine not found: "+name)
	}
	delete(e.machines, name)
	return nil
}

// StartExecution begins a new, asynchronous run of name's state machine.
// The returned Execution is already registered and can be polled via
// DescribeExecution; it transitions out of RUNNING once the interpreter
// goroutine finishes.
func (e *Engine) StartExecution(ctx context.Context, name string, input json.RawMessage) (*Execution, error) {
	e.mu.RLock()
	def, ok := e.machines[name]
	e.mu.RUnlock()
	if !ok {
		return nil, ldkerr.NotFound("StateMachineDoesNotExist", "state machine not found: "+name)
	}

	exec := &Execution{
		ID:               uuid.NewString(),
		StateMachineName: name,
		Status:           ExecRunning,
		Input:            input,
		StartedAt:        time.Now(),
	}
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()

	var data interface{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &data); err != nil {
			return nil, ldkerr.Client("InvalidExecutionInput", "execution input must be valid JSON")
		}
	}

	go e.run(ctx, exec, def, data)
	return exec, nil
}

func (e *Engine) run(ctx context.Context, exec *Execution, def Definition, data interface{}) {
	in := newInterpreter(def, e.invoker, func(evt HistoryEvent) {
		e.mu.Lock()
		exec.History = append(exec.History, evt)
		e.mu.Unlock()
	})

	out, err := in.Run(ctx, data)

	e.mu.Lock()
	defer e.mu.Unlock()
	exec.StoppedAt = time.Now()
	if err != nil {
		if ctx.Err() != nil {
			exec.Status = ExecTimedOut
		} else {
			exec.Status = ExecFailed
		}
		exec.Error = err.Error()
		return
	}
	exec.Status = ExecSucceeded
	encoded, marshalErr := json.Marshal(out)
	if marshalErr == nil {
		exec.Output = encoded
	}
}

// DescribeExecution returns the current state of an execution.
func (e *Engine) DescribeExecution(id string) (*Execution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.executions[id]
	if !ok {
		return nil, ldkerr.NotFound("ExecutionDoesNotExist", "execution not found: "+id)
	}
	return exec, nil
}

// ListExecutions returns every execution started for a state machine, most
// recent first.
func (e *Engine) ListExecutions(stateMachineName string) []*Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Execution
	for _, exec := range e.executions {
		if exec.StateMachineName == stateMachineName {
			out = append(out, exec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Reset drops every execution and definition, used by /_ldk/reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.machines = make(map[string]Definition)
	e.executions = make(map[string]*Execution)
}
