// Package workflow implements component I: a state-machine workflow
// orchestrator interpreting a JSON state-machine definition (Pass, Task,
// Choice, Wait, Succeed, Fail, Parallel, Map states) with retry/catch,
// timeouts, and JSONPath-driven input/output transforms.
package workflow

import (
	"encoding/json"
	"time"
)

// StateType enumerates the supported state kinds.
type StateType string

const (
	StatePass     StateType = "Pass"
	StateTask     StateType = "Task"
	StateChoice   StateType = "Choice"
	StateWait     StateType = "Wait"
	StateSucceed  StateType = "Succeed"
	StateFail     StateType = "Fail"
	StateParallel StateType = "Parallel"
	StateMap      StateType = "Map"
)

// Retrier is one retry policy entry. Retries are applied to Task states
// only; a Retry list on a Parallel or Map state is not acted on.
type Retrier struct {
	ErrorEquals     []string
	IntervalSeconds int
	MaxAttempts     int
	BackoffRate     float64
}

// Catcher is one catch policy entry for a Task/Parallel/Map state.
type Catcher struct {
	ErrorEquals []string
	ResultPath  string
	Next        string
}

// ChoiceRule is one branch of a Choice state.
type ChoiceRule struct {
	Variable                 string
	Next                     string
	StringEquals             *string
	StringLessThan           *string
	StringGreaterThan        *string
	StringLessThanEquals     *string
	StringGreaterThanEquals  *string
	NumericEquals            *float64
	NumericGT                *float64
	NumericLT                *float64
	NumericGreaterThanEquals *float64
	NumericLessThanEquals    *float64
	BooleanEquals            *bool
	IsPresent                *bool
	IsNull                   *bool
	And                      []ChoiceRule
	Or                       []ChoiceRule
	Not                      *ChoiceRule
}

// State is one node of the state machine, fields populated according to Type.
type State struct {
	Type            StateType
	Next            string
	End             bool
	InputPath       string
	OutputPath      string
	ResultPath      string
	Parameters      map[string]interface{}
	Result          interface{} // Pass state literal output
	Resource        string      // Task state: function name to invoke
	TimeoutSeconds  int
	Retry           []Retrier
	Catch           []Catcher
	Choices         []ChoiceRule
	Default         string
	SecondsWait     int
	Cause           string // Fail state
	ErrorName       string // Fail state
	Branches        []Definition // Parallel state
	Iterator        *Definition  // Map state
	ItemsPath       string       // Map state: path to the array to iterate
	MaxConcurrency  int          // Map state
}

// Definition is a complete state machine.
type Definition struct {
	StartAt string
	States  map[string]State
}

// ExecutionStatus is the terminal or in-progress status of one execution.
type ExecutionStatus string

const (
	ExecRunning   ExecutionStatus = "RUNNING"
	ExecSucceeded ExecutionStatus = "SUCCEEDED"
	ExecFailed    ExecutionStatus = "FAILED"
	ExecTimedOut  ExecutionStatus = "TIMED_OUT"
)

// HistoryEvent records one step of an execution for later inspection.
type HistoryEvent struct {
	Timestamp time.Time
	StateName string
	Type      string // "StateEntered" | "StateExited" | "ExecutionFailed" | ...
	Detail    string
}

// Execution tracks one run of a state machine to completion.
type Execution struct {
	ID               string
	StateMachineName string
	Status    ExecutionStatus
	Input     json.RawMessage
	Output    json.RawMessage
	Error     string
	StartedAt time.Time
	StoppedAt time.Time
	History   []HistoryEvent
}

// StateError is a structured workflow failure, carrying the Name used to
// match Retry/Catch ErrorEquals clauses.
type StateError struct {
	Name  string
	Cause string
}

func (e *StateError) Error() string { return e.Name + ": " + e.Cause }
