package parameters

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Engine owns every parameter in one instance, keyed by its full path name.
type Engine struct {
	mu     sync.RWMutex
	params map[string]*Parameter
}

func NewEngine() *Engine {
	return &Engine{params: make(map[string]*Parameter)}
}

// PutParameter creates or, with overwrite, updates a parameter, bumping its
// version and recording the prior value in history.
func (e *Engine) PutParameter(name string, typ ParamType, value, description string, overwrite bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	existing, exists := e.params[name]
	if exists && !overwrite {
		return 0, ldkerr.Conflict("ParameterAlreadyExists", "parameter already exists: "+name)
	}
	if exists {
		existing.History[existing.Version] = existing.Value
		existing.Value = value
		existing.Type = typ
		existing.Description = description
		existing.Version++
		existing.UpdatedAt = time.Now()
		return existing.Version, nil
	}
	e.params[name] = &Parameter{
		Name:        name,
		Type:        typ,
		Value:       value,
		Version:     1,
		History:     make(map[int]string),
		Description: description,
		UpdatedAt:   time.Now(),
	}
	return 1, nil
}

// GetParameter returns one parameter by exact name.
func (e *Engine) GetParameter(name string) (*Parameter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.params[name]
	if !ok {
		return nil, ldkerr.NotFound("ParameterNotFound", "parameter not found: "+name)
	}
	snapshot := *p
	return &snapshot, nil
}

// GetParameters returns every parameter matching the requested names,
// skipping ones that don't exist rather than failing the whole batch.
func (e *Engine) GetParameters(names []string) []*Parameter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Parameter, 0, len(names))
	for _, name := range names {
		if p, ok := e.params[name]; ok {
			snapshot := *p
			out = append(out, &snapshot)
		}
	}
	return out
}

// GetParametersByPath returns every parameter whose name falls under prefix,
// optionally recursing into sub-paths.
func (e *Engine) GetParametersByPath(prefix string, recursive bool) []*Parameter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	var out []*Parameter
	for name, p := range e.params {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if !recursive && strings.Contains(rest, "/") {
			continue
		}
		snapshot := *p
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DeleteParameter removes a parameter outright (no soft-delete, unlike
// secrets, since parameter values carry no rotation/recovery workflow).
func (e *Engine) DeleteParameter(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.params[name]; !ok {
		return ldkerr.NotFound("ParameterNotFound", "parameter not found: "+name)
	}
	delete(e.params, name)
	return nil
}

// DescribeParameters lists every parameter's metadata without values.
func (e *Engine) DescribeParameters() []*Parameter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Parameter, 0, len(e.params))
	for _, p := range e.params {
		snapshot := *p
		snapshot.Value = ""
		snapshot.History = nil
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset drops every parameter, used by /_ldk/reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = make(map[string]*Parameter)
}
