package secrets

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// Engine owns every secret in one instance, guarded by a single mutex in
// the same style as the identity pool store: the secret catalog is small
// and mutation-rate is low enough that per-secret locking buys nothing.
type Engine struct {
	mu      sync.RWMutex
	secrets map[string]*Secret
}

func NewEngine() *Engine {
	return &Engine{secrets: make(map[string]*Secret)}
}

// CreateSecret registers a new secret with its first version staged current.
func (e *Engine) CreateSecret(name, description, value string) (*Version, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.secrets[name]; exists {
		return nil, ldkerr.Conflict("ResourceExistsException", "secret already exists: "+name)
	}
	v := Version{VersionID: uuid.NewString(), Value: value, CreatedAt: time.Now()}
	e.secrets[name] = &Secret{
		Name:        name,
		Description: description,
		Versions:    map[string]Version{v.VersionID: v},
		Stages:      map[Stage]string{StageCurrent: v.VersionID},
		CreatedAt:   time.Now(),
	}
	return &v, nil
}

// PutSecretValue adds a new version, demoting the prior current version to
// AWSPREVIOUS.
func (e *Engine) PutSecretValue(name, value string) (*Version, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.secrets[name]
	if !ok || s.DeletedAt != nil {
		return nil, ldkerr.NotFound("ResourceNotFoundException", "secret not found: "+name)
	}
	v := Version{VersionID: uuid.NewString(), Value: value, CreatedAt: time.Now()}
	if prev, ok := s.Stages[StageCurrent]; ok {
		s.Stages[StagePrevious] = prev
	}
	s.Versions[v.VersionID] = v
	s.Stages[StageCurrent] = v.VersionID
	return &v, nil
}

// GetSecretValue resolves either an explicit version id or a stage label,
// defaulting to the current stage.
func (e *Engine) GetSecretValue(name, versionID string, stage Stage) (*Version, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.secrets[name]
	if !ok || s.DeletedAt != nil {
		return nil, ldkerr.NotFound("ResourceNotFoundException", "secret not found: "+name)
	}
	if versionID != "" {
		v, ok := s.Versions[versionID]
		if !ok {
			return nil, ldkerr.NotFound("ResourceNotFoundException", "version not found: "+versionID)
		}
		return &v, nil
	}
	if stage == "" {
		stage = StageCurrent
	}
	id, ok := s.Stages[stage]
	if !ok {
		return nil, ldkerr.NotFound("ResourceNotFoundException", "no version staged "+string(stage))
	}
	v := s.Versions[id]
	return &v, nil
}

// DeleteSecret soft-deletes a secret: it is excluded from ListSecrets, and
// GetSecretValue (with or without a version id) and PutSecretValue report
// it as not found.
func (e *Engine) DeleteSecret(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.secrets[name]
	if !ok {
		return ldkerr.NotFound("ResourceNotFoundException", "secret not found: "+name)
	}
	now := time.Now()
	s.DeletedAt = &now
	return nil
}

// ListSecrets returns every non-deleted secret's metadata.
func (e *Engine) ListSecrets() []*Secret {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Secret, 0, len(e.secrets))
	for _, s := range e.secrets {
		if s.DeletedAt == nil {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops every secret, used by /_ldk/reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.secrets = make(map[string]*Secret)
}
