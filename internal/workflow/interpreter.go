package workflow

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/local-web-services/ldk/internal/ldkerr"
	"github.com/local-web-services/ldk/internal/path"
)

// FunctionInvoker invokes a function-compute handler by name, implemented by
// the function-compute service and injected at wiring time.
type FunctionInvoker interface {
	Invoke(ctx context.Context, name string, event interface{}) (interface{}, error)
}

// interpreter runs one execution of a Definition to completion.
type interpreter struct {
	def      Definition
	invoker  FunctionInvoker
	recorder func(HistoryEvent)
}

func newInterpreter(def Definition, invoker FunctionInvoker, recorder func(HistoryEvent)) *interpreter {
	return &interpreter{def: def, invoker: invoker, recorder: recorder}
}

func (in *interpreter) record(stateName, typ, detail string) {
	if in.recorder == nil {
		return
	}
	in.recorder(HistoryEvent{Timestamp: time.Now(), StateName: stateName, Type: typ, Detail: detail})
}

// Run interprets the state machine starting at def.StartAt, returning the
// final output or a *StateError on an unhandled Fail/Task error.
func (in *interpreter) Run(ctx context.Context, input interface{}) (interface{}, error) {
	current := in.def.StartAt
	data := input

	for {
		state, ok := in.def.States[current]
		if !ok {
			return nil, ldkerr.Client("StatesValidationException", "unknown state: "+current)
		}
		in.record(current, "StateEntered", "")

		out, next, err := in.runState(ctx, current, state, data)
		if err != nil {
			in.record(current, "ExecutionFailed", err.Error())
			return nil, err
		}
		in.record(current, "StateExited", "")

		if state.Type == StateSucceed || state.End || next == "" {
			return out, nil
		}
		current = next
		data = out
	}
}

func (in *interpreter) runState(ctx context.Context, name string, state State, data interface{}) (interface{}, string, error) {
	effectiveInput, err := in.applyInputPath(state, data)
	if err != nil {
		return nil, "", err
	}

	var result interface{}
	var stateErr error

	switch state.Type {
	case StatePass:
		result = state.Result
		if result == nil {
			result = effectiveInput
		}
	case StateSucceed:
		result = effectiveInput
	case StateFail:
		return nil, "", &StateError{Name: state.ErrorName, Cause: state.Cause}
	case StateWait:
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(time.Duration(state.SecondsWait) * time.Second):
		}
		result = effectiveInput
	case StateChoice:
		next := state.Default
		for _, rule := range state.Choices {
			if evalChoiceRule(rule, effectiveInput) {
				next = rule.Next
				break
			}
		}
		if next == "" {
			return nil, "", ldkerr.Client("StatesNoChoiceMatched", "no choice rule matched and no default set")
		}
		return effectiveInput, next, nil
	case StateTask:
		result, stateErr = in.runTaskWithRetry(ctx, state, effectiveInput)
	case StateParallel:
		result, stateErr = in.runParallel(ctx, state, effectiveInput)
	case StateMap:
		result, stateErr = in.runMap(ctx, state, effectiveInput)
	default:
		return nil, "", ldkerr.Client("StatesValidationException", "unsupported state type: "+string(state.Type))
	}

	if stateErr != nil {
		if out, next, ok := in.applyCatch(state, stateErr, effectiveInput); ok {
			finalOut, err := in.applyOutputPath(state, data, out)
			if err != nil {
				return nil, "", err
			}
			return finalOut, next, nil
		}
		return nil, "", stateErr
	}

	merged, err := in.applyResultPath(state, data, result)
	if err != nil {
		return nil, "", err
	}
	finalOut, err := in.applyOutputPath(state, data, merged)
	if err != nil {
		return nil, "", err
	}
	return finalOut, state.Next, nil
}

func (in *interpreter) applyInputPath(state State, data interface{}) (interface{}, error) {
	if state.InputPath == "" {
		return data, nil
	}
	return path.Extract(data, nil, state.InputPath)
}

func (in *interpreter) applyResultPath(state State, original, result interface{}) (interface{}, error) {
	if state.ResultPath == "" {
		return result, nil
	}
	if state.ResultPath == "$" {
		return result, nil
	}
	return path.Assign(original, state.ResultPath, result)
}

func (in *interpreter) applyOutputPath(state State, original, merged interface{}) (interface{}, error) {
	if state.OutputPath == "" {
		return merged, nil
	}
	return path.Extract(merged, original, state.OutputPath)
}

// runTaskWithRetry invokes a Task's function, retrying per the state's
// Retry policy (exponential backoff, matched by StateError.Name against
// each Retrier's ErrorEquals, with a wildcard "States.ALL" matching any
// error).
func (in *interpreter) runTaskWithRetry(ctx context.Context, state State, input interface{}) (interface{}, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if state.TimeoutSeconds > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(state.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	attempt := 0
	var lastErr error
	for {
		attempt++
		out, err := in.invoker.Invoke(callCtx, state.Resource, input)
		if err == nil {
			return out, nil
		}
		lastErr = toStateError(err)

		retrier := matchRetrier(state.Retry, lastErr)
		if retrier == nil || attempt >= maxAttempts(retrier) {
			return nil, lastErr
		}
		backoff := backoffDuration(retrier, attempt)
		select {
		case <-callCtx.Done():
			return nil, lastErr
		case <-time.After(backoff):
		}
	}
}

func toStateError(err error) error {
	if se, ok := err.(*StateError); ok {
		return se
	}
	if e, ok := ldkerr.As(err); ok {
		return &StateError{Name: e.Code, Cause: e.Message}
	}
	return &StateError{Name: "States.TaskFailed", Cause: err.Error()}
}

func matchRetrier(retriers []Retrier, err error) *Retrier {
	se, ok := err.(*StateError)
	if !ok {
		return nil
	}
	for i := range retriers {
		for _, name := range retriers[i].ErrorEquals {
			if name == "States.ALL" || name == se.Name {
				return &retriers[i]
			}
		}
	}
	return nil
}

func maxAttempts(r *Retrier) int {
	if r.MaxAttempts <= 0 {
		return 3
	}
	return r.MaxAttempts
}

func backoffDuration(r *Retrier, attempt int) time.Duration {
	interval := r.IntervalSeconds
	rate := r.BackoffRate
	if rate <= 0 {
		rate = 2.0
	}
	seconds := float64(interval) * math.Pow(rate, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

func (in *interpreter) applyCatch(state State, err error, input interface{}) (out interface{}, next string, matched bool) {
	se, ok := err.(*StateError)
	if !ok {
		return nil, "", false
	}
	for _, c := range state.Catch {
		for _, name := range c.ErrorEquals {
			if name != "States.ALL" && name != se.Name {
				continue
			}
			errDoc := map[string]interface{}{"Error": se.Name, "Cause": se.Cause}
			result := interface{}(errDoc)
			if c.ResultPath != "" && c.ResultPath != "$" {
				merged, mergeErr := path.Assign(input, c.ResultPath, errDoc)
				if mergeErr == nil {
					result = merged
				}
			}
			return result, c.Next, true
		}
	}
	return nil, "", false
}

// runParallel executes every branch of a Parallel state against the same
// input concurrently, returning a slice of each branch's output in order.
func (in *interpreter) runParallel(ctx context.Context, state State, input interface{}) (interface{}, error) {
	results := make([]interface{}, len(state.Branches))
	errCh := make(chan error, len(state.Branches))

	for i, branch := range state.Branches {
		go func(i int, branch Definition) {
			sub := newInterpreter(branch, in.invoker, in.recorder)
			out, err := sub.Run(ctx, input)
			if err != nil {
				errCh <- err
				return
			}
			results[i] = out
			errCh <- nil
		}(i, branch)
	}

	for range state.Branches {
		if err := <-errCh; err != nil {
			return nil, toStateError(err)
		}
	}
	return results, nil
}

// runMap iterates the array at state.ItemsPath, invoking state.Iterator
// once per element, bounded to MaxConcurrency concurrent iterations via a
// weighted semaphore.
func (in *interpreter) runMap(ctx context.Context, state State, input interface{}) (interface{}, error) {
	itemsRaw := input
	if state.ItemsPath != "" {
		v, err := path.Extract(input, nil, state.ItemsPath)
		if err != nil {
			return nil, err
		}
		itemsRaw = v
	}
	items, ok := itemsRaw.([]interface{})
	if !ok {
		return nil, ldkerr.Client("StatesValidationException", "Map state ItemsPath did not resolve to an array")
	}
	if state.Iterator == nil {
		return nil, ldkerr.Client("StatesValidationException", "Map state requires an Iterator definition")
	}

	concurrency := state.MaxConcurrency
	if concurrency <= 0 {
		concurrency = int64Max(len(items), 1)
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	results := make([]interface{}, len(items))
	errCh := make(chan error, len(items))

	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func(i int, item interface{}) {
			defer sem.Release(1)
			sub := newInterpreter(*state.Iterator, in.invoker, in.recorder)
			out, err := sub.Run(ctx, item)
			if err != nil {
				errCh <- err
				return
			}
			results[i] = out
			errCh <- nil
		}(i, item)
	}

	for range items {
		if err := <-errCh; err != nil {
			return nil, toStateError(err)
		}
	}
	return results, nil
}

func int64Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func evalChoiceRule(rule ChoiceRule, data interface{}) bool {
	if len(rule.And) > 0 {
		for _, sub := range rule.And {
			if !evalChoiceRule(sub, data) {
				return false
			}
		}
		return true
	}
	if len(rule.Or) > 0 {
		for _, sub := range rule.Or {
			if evalChoiceRule(sub, data) {
				return true
			}
		}
		return false
	}
	if rule.Not != nil {
		return !evalChoiceRule(*rule.Not, data)
	}

	val, err := path.Extract(data, nil, rule.Variable)
	present := err == nil

	switch {
	case rule.IsPresent != nil:
		return present == *rule.IsPresent
	case rule.IsNull != nil:
		return present == !*rule.IsNull
	case rule.StringEquals != nil:
		s, ok := val.(string)
		return present && ok && s == *rule.StringEquals
	case rule.StringLessThan != nil:
		s, ok := val.(string)
		return present && ok && s < *rule.StringLessThan
	case rule.StringGreaterThan != nil:
		s, ok := val.(string)
		return present && ok && s > *rule.StringGreaterThan
	case rule.StringLessThanEquals != nil:
		s, ok := val.(string)
		return present && ok && s <= *rule.StringLessThanEquals
	case rule.StringGreaterThanEquals != nil:
		s, ok := val.(string)
		return present && ok && s >= *rule.StringGreaterThanEquals
	case rule.NumericEquals != nil:
		f, ok := toFloat(val)
		return present && ok && f == *rule.NumericEquals
	case rule.NumericGT != nil:
		f, ok := toFloat(val)
		return present && ok && f > *rule.NumericGT
	case rule.NumericLT != nil:
		f, ok := toFloat(val)
		return present && ok && f < *rule.NumericLT
	case rule.NumericGreaterThanEquals != nil:
		f, ok := toFloat(val)
		return present && ok && f >= *rule.NumericGreaterThanEquals
	case rule.NumericLessThanEquals != nil:
		f, ok := toFloat(val)
		return present && ok && f <= *rule.NumericLessThanEquals
	case rule.BooleanEquals != nil:
		b, ok := val.(bool)
		return present && ok && b == *rule.BooleanEquals
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}
