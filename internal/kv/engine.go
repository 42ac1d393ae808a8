package kv

import (
	"sync"
	"time"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// TableStatus mirrors the lifecycle a table reports while CreateTable runs;
// since table creation here is synchronous, tables go straight to Active.
type TableStatus string

const (
	TableCreating TableStatus = "CREATING"
	TableActive   TableStatus = "ACTIVE"
	TableDeleting TableStatus = "DELETING"
)

// TableDescription is the external, read-only view of a table's definition
// plus its current item count, returned by DescribeTable.
type TableDescription struct {
	Def       TableDef
	Status    TableStatus
	ItemCount int
}

// Engine owns every table in one KV service instance: creation, deletion,
// lookup, and listing. One Engine backs one deployed KV provider.
type Engine struct {
	mu                sync.RWMutex
	dataDir           string
	consistencyWindow time.Duration
	sink              StreamSink
	tables            map[string]*Table
}

// NewEngine constructs an engine rooted at dataDir, with consistencyWindow
// governing how long a non-strongly-consistent read may see a stale
// snapshot after a write (spec.md §4.3), and sink receiving every committed
// change across every table with a stream configured.
func NewEngine(dataDir string, consistencyWindow time.Duration, sink StreamSink) *Engine {
	return &Engine{
		dataDir:           dataDir,
		consistencyWindow: consistencyWindow,
		sink:              sink,
		tables:            make(map[string]*Table),
	}
}

// CreateTable creates and opens a new table, replaying any on-disk state
// left from a prior process (tables are durable across restarts of the
// same data directory).
func (e *Engine) CreateTable(def TableDef) (*TableDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tables[def.Name]; exists {
		return nil, ldkerr.Conflict("ResourceInUseException", "table already exists: "+def.Name)
	}

	t, err := newTable(def, e.dataDir, e.consistencyWindow, e.sink)
	if err != nil {
		return nil, err
	}
	e.tables[def.Name] = t

	return &TableDescription{Def: def, Status: TableActive, ItemCount: len(t.items)}, nil
}

// DeleteTable closes and removes a table from the engine. The underlying
// WAL/snapshot files are left on disk; only the in-memory registration is
// dropped, matching a dev-emulator's "good enough" durability story.
func (e *Engine) DeleteTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tables[name]
	if !ok {
		return ldkerr.NotFound("ResourceNotFoundException", "table not found: "+name)
	}
	_ = t.Close()
	delete(e.tables, name)
	return nil
}

// DescribeTable returns the definition and current item count for a table.
func (e *Engine) DescribeTable(name string) (*TableDescription, error) {
	t, err := e.Table(name)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &TableDescription{Def: t.def, Status: TableActive, ItemCount: len(t.items)}, nil
}

// ListTables returns every table name currently registered.
func (e *Engine) ListTables() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	return names
}

// Table looks up a table by name, or returns a not-found error matching the
// wire adapter's expected error code.
func (e *Engine) Table(name string) (*Table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	if !ok {
		return nil, ldkerr.NotFound("ResourceNotFoundException", "table not found: "+name)
	}
	return t, nil
}

// Reset drops every table's in-memory state and re-opens it empty, used by
// the management surface's /_ldk/reset endpoint. The on-disk WAL/snapshot
// files for each table are truncated so the reset is durable too.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, t := range e.tables {
		def := t.def
		_ = t.Close()
		if err := wipeTableDir(e.dataDir, name); err != nil {
			return err
		}
		fresh, err := newTable(def, e.dataDir, e.consistencyWindow, e.sink)
		if err != nil {
			return err
		}
		e.tables[name] = fresh
	}
	return nil
}

// Close shuts down every open table, flushing its WAL file handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, t := range e.tables {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
