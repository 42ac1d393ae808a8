package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Engine owns every registered function and the HTTP client used to forward
// invocations to their configured endpoints.
type Engine struct {
	mu        sync.RWMutex
	functions map[string]*FunctionConfig
	client    *http.Client
}

func NewEngine() *Engine {
	return &Engine{
		functions: make(map[string]*FunctionConfig),
		client:    &http.Client{},
	}
}

// CreateFunction registers a new function.
func (e *Engine) CreateFunction(cfg FunctionConfig) (*FunctionConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.functions[cfg.Name]; exists {
		return nil, ldkerr.Conflict("ResourceConflictException", "function already exists: "+cfg.Name)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	cfg.CreatedAt = time.Now()
	cfg.Version = 1
	e.functions[cfg.Name] = &cfg
	return &cfg, nil
}

// UpdateFunctionCode updates the invoke URL (standing in for deployed code)
// of an existing function, bumping its version.
func (e *Engine) UpdateFunctionCode(name, invokeURL string) (*FunctionConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, ok := e.functions[name]
	if !ok {
		return nil, ldkerr.NotFound("ResourceNotFoundException", "function not found: "+name)
	}
	fn.InvokeURL = invokeURL
	fn.Version++
	snapshot := *fn
	return &snapshot, nil
}

// GetFunction returns a function's configuration.
func (e *Engine) GetFunction(name string) (*FunctionConfig, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.functions[name]
	if !ok {
		return nil, ldkerr.NotFound("ResourceNotFoundException", "function not found: "+name)
	}
	snapshot := *fn
	return &snapshot, nil
}

// DeleteFunction removes a function.
func (e *Engine) DeleteFunction(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.functions[name]; !ok {
		return ldkerr.NotFound("ResourceNotFoundException", "function not found: "+name)
	}
	delete(e.functions, name)
	return nil
}

// ListFunctions returns every registered function's configuration.
func (e *Engine) ListFunctions() []FunctionConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]FunctionConfig, 0, len(e.functions))
	for _, fn := range e.functions {
		out = append(out, *fn)
	}
	return out
}

// Invoke implements workflow.FunctionInvoker and pubsub/fabric's dispatch
// target: it POSTs the event as JSON to the function's invoke URL and
// returns the decoded JSON response.
func (e *Engine) Invoke(ctx context.Context, name string, event interface{}) (interface{}, error) {
	e.mu.RLock()
	fn, ok := e.functions[name]
	e.mu.RUnlock()
	if !ok {
		return nil, ldkerr.NotFound("ResourceNotFoundException", "function not found: "+name)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, ldkerr.Client("InvalidRequestContentException", "event is not JSON-serializable: "+err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, fn.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, fn.InvokeURL, bytes.NewReader(body))
	if err != nil {
		return nil, ldkerr.Client("InvalidRequestContentException", "could not build invocation request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range fn.Environment {
		req.Header.Set("X-Ldk-Env-"+k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ldkerr.Transient("ServiceException", "function invocation failed: "+err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ldkerr.Transient("ServiceException", "reading function response failed: "+err.Error())
	}
	if resp.StatusCode >= 400 {
		return nil, ldkerr.Wrap(ldkerrKindForStatus(resp.StatusCode), "Unhandled", &httpError{status: resp.StatusCode, body: string(respBody)})
	}

	var out interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil {
			out = string(respBody)
		}
	}
	return out, nil
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string { return e.body }

func ldkerrKindForStatus(status int) ldkerr.Kind {
	if status >= 500 {
		return ldkerr.KindTransient
	}
	return ldkerr.KindClient
}

// Reset clears every registered function.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions = make(map[string]*FunctionConfig)
}
