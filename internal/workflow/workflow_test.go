package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubInvoker struct {
	calls   int
	failFor int // fail this many calls before succeeding
	handler func(event interface{}) (interface{}, error)
}

func (s *stubInvoker) Invoke(ctx context.Context, name string, event interface{}) (interface{}, error) {
	s.calls++
	if s.failFor > 0 && s.calls <= s.failFor {
		return nil, &StateError{Name: "States.TaskFailed", Cause: "transient failure"}
	}
	if s.handler != nil {
		return s.handler(event)
	}
	return event, nil
}

func waitForTerminal(t *testing.T, e *Engine, execID string) *Execution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := e.DescribeExecution(execID)
		require.NoError(t, err)
		if exec.Status != ExecRunning {
			return exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("execution did not reach a terminal state in time")
	return nil
}

func TestPassChainExecution(t *testing.T) {
	def := Definition{
		StartAt: "First",
		States: map[string]State{
			"First":  {Type: StatePass, Result: map[string]interface{}{"step": "one"}, Next: "Second"},
			"Second": {Type: StatePass, Result: map[string]interface{}{"step": "two"}, End: true},
		},
	}
	invoker := &stubInvoker{}
	e := NewEngine(invoker)
	require.NoError(t, e.CreateStateMachine("chain", def))

	exec, err := e.StartExecution(context.Background(), "chain", json.RawMessage(`{}`))
	require.NoError(t, err)

	done := waitForTerminal(t, e, exec.ID)
	require.Equal(t, ExecSucceeded, done.Status)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(done.Output, &out))
	require.Equal(t, "two", out["step"])
}

func TestRetryThenSucceed(t *testing.T) {
	def := Definition{
		StartAt: "DoWork",
		States: map[string]State{
			"DoWork": {
				Type:     StateTask,
				Resource: "flaky-fn",
				Retry: []Retrier{{
					ErrorEquals:     []string{"States.ALL"},
					IntervalSeconds: 0,
					MaxAttempts:     5,
					BackoffRate:     1,
				}},
				End: true,
			},
		},
	}
	invoker := &stubInvoker{failFor: 2}
	e := NewEngine(invoker)
	require.NoError(t, e.CreateStateMachine("retry-machine", def))

	exec, err := e.StartExecution(context.Background(), "retry-machine", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)

	done := waitForTerminal(t, e, exec.ID)
	require.Equal(t, ExecSucceeded, done.Status)
	require.Equal(t, 3, invoker.calls)
}

func TestChoiceDefaultBranch(t *testing.T) {
	def := Definition{
		StartAt: "Branch",
		States: map[string]State{
			"Branch": {
				Type: StateChoice,
				Choices: []ChoiceRule{
					{Variable: "$.status", StringEquals: strPtr("READY"), Next: "Ready"},
				},
				Default: "NotReady",
			},
			"Ready":    {Type: StatePass, Result: "ready-path", End: true},
			"NotReady": {Type: StatePass, Result: "default-path", End: true},
		},
	}
	invoker := &stubInvoker{}
	e := NewEngine(invoker)
	require.NoError(t, e.CreateStateMachine("choice-machine", def))

	exec, err := e.StartExecution(context.Background(), "choice-machine", json.RawMessage(`{"status":"PENDING"}`))
	require.NoError(t, err)

	done := waitForTerminal(t, e, exec.ID)
	require.Equal(t, ExecSucceeded, done.Status)

	var out string
	require.NoError(t, json.Unmarshal(done.Output, &out))
	require.Equal(t, "default-path", out)
}

func TestCatchHandlesTaskFailure(t *testing.T) {
	def := Definition{
		StartAt: "DoWork",
		States: map[string]State{
			"DoWork": {
				Type:     StateTask,
				Resource: "always-fails",
				Catch: []Catcher{{
					ErrorEquals: []string{"States.ALL"},
					Next:        "Handled",
				}},
			},
			"Handled": {Type: StatePass, Result: "recovered", End: true},
		},
	}
	invoker := &stubInvoker{failFor: 1000}
	e := NewEngine(invoker)
	require.NoError(t, e.CreateStateMachine("catch-machine", def))

	exec, err := e.StartExecution(context.Background(), "catch-machine", json.RawMessage(`{}`))
	require.NoError(t, err)

	done := waitForTerminal(t, e, exec.ID)
	require.Equal(t, ExecSucceeded, done.Status)
}

func TestEvalChoiceRuleComparators(t *testing.T) {
	data := map[string]interface{}{"count": 5.0, "name": "mango", "flag": true}

	cases := []struct {
		name string
		rule ChoiceRule
		want bool
	}{
		{"numeric-gte-equal", ChoiceRule{Variable: "$.count", NumericGreaterThanEquals: floatPtr(5)}, true},
		{"numeric-gte-below", ChoiceRule{Variable: "$.count", NumericGreaterThanEquals: floatPtr(6)}, false},
		{"numeric-lte-equal", ChoiceRule{Variable: "$.count", NumericLessThanEquals: floatPtr(5)}, true},
		{"numeric-lte-above", ChoiceRule{Variable: "$.count", NumericLessThanEquals: floatPtr(4)}, false},
		{"string-lt", ChoiceRule{Variable: "$.name", StringLessThan: strPtr("zebra")}, true},
		{"string-gt", ChoiceRule{Variable: "$.name", StringGreaterThan: strPtr("apple")}, true},
		{"string-lte-equal", ChoiceRule{Variable: "$.name", StringLessThanEquals: strPtr("mango")}, true},
		{"string-gte-equal", ChoiceRule{Variable: "$.name", StringGreaterThanEquals: strPtr("mango")}, true},
		{"string-gte-below", ChoiceRule{Variable: "$.name", StringGreaterThanEquals: strPtr("zebra")}, false},
		{"is-null-present-field", ChoiceRule{Variable: "$.name", IsNull: boolPtr(true)}, false},
		{"is-null-missing-field", ChoiceRule{Variable: "$.missing", IsNull: boolPtr(true)}, true},
		{"is-null-false-on-present", ChoiceRule{Variable: "$.name", IsNull: boolPtr(false)}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, evalChoiceRule(tc.rule, data))
		})
	}
}

func TestNumericGreaterThanEqualsSelectsMatchingChoice(t *testing.T) {
	def := Definition{
		StartAt: "Branch",
		States: map[string]State{
			"Branch": {
				Type: StateChoice,
				Choices: []ChoiceRule{
					{Variable: "$.count", NumericGreaterThanEquals: floatPtr(10), Next: "High"},
				},
				Default: "Low",
			},
			"High": {Type: StatePass, Result: "high", End: true},
			"Low":  {Type: StatePass, Result: "low", End: true},
		},
	}
	invoker := &stubInvoker{}
	e := NewEngine(invoker)
	require.NoError(t, e.CreateStateMachine("comparator-machine", def))

	exec, err := e.StartExecution(context.Background(), "comparator-machine", json.RawMessage(`{"count":25}`))
	require.NoError(t, err)

	done := waitForTerminal(t, e, exec.ID)
	require.Equal(t, ExecSucceeded, done.Status)

	var out string
	require.NoError(t, json.Unmarshal(done.Output, &out))
	require.Equal(t, "high", out)
}

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64  { return &f }
func boolPtr(b bool) *bool         { return &b }
