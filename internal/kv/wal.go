package kv

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/local-web-services/ldk/internal/codec"
	"github.com/local-web-services/ldk/internal/ldkerr"
)

// walOp is one entry in a table's write-ahead log.
type walOp struct {
	Op   string     `json:"op"` // "put" | "delete"
	Key  string     `json:"key"`
	Item codec.Item `json:"item,omitempty"`
}

// wal is an append-only journal plus a periodically compacted snapshot, per
// the storage design note in spec.md §9: targets without an embedded
// relational/indexing library implement persistence directly as an
// append-only log with compaction.
type wal struct {
	mu            sync.Mutex
	dir           string
	logFile       *os.File
	entriesSince  int
	compactEvery  int
}

func openWAL(dataDir, tableName string) (*wal, map[string]codec.Item, error) {
	dir := filepath.Join(dataDir, "kv", tableName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, ldkerr.Fatal("StorageError", "create table directory: "+err.Error())
	}

	items := make(map[string]codec.Item)
	if err := loadSnapshot(filepath.Join(dir, "snapshot.json"), items); err != nil {
		return nil, nil, err
	}
	if err := replayLog(filepath.Join(dir, "wal.log"), items); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, "wal.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, ldkerr.Fatal("StorageError", "open wal log: "+err.Error())
	}

	return &wal{dir: dir, logFile: f, compactEvery: 500}, items, nil
}

func loadSnapshot(path string, into map[string]codec.Item) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ldkerr.Fatal("StorageError", "read snapshot: "+err.Error())
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &into); err != nil {
		return ldkerr.Fatal("StorageError", "corrupt snapshot: "+err.Error())
	}
	return nil
}

func replayLog(path string, into map[string]codec.Item) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ldkerr.Fatal("StorageError", "open wal log: "+err.Error())
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var op walOp
		if err := json.Unmarshal(scanner.Bytes(), &op); err != nil {
			continue // skip a partially-written trailing record
		}
		switch op.Op {
		case "put":
			into[op.Key] = op.Item
		case "delete":
			delete(into, op.Key)
		}
	}
	return nil
}

func (w *wal) appendPut(key string, item codec.Item) error {
	return w.append(walOp{Op: "put", Key: key, Item: item})
}

func (w *wal) appendDelete(key string) error {
	return w.append(walOp{Op: "delete", Key: key})
}

func (w *wal) append(op walOp) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(op)
	if err != nil {
		return ldkerr.Fatal("StorageError", "marshal wal entry: "+err.Error())
	}
	if _, err := w.logFile.Write(append(data, '\n')); err != nil {
		return ldkerr.Fatal("StorageError", "write wal entry: "+err.Error())
	}
	w.entriesSince++
	return nil
}

// compact rewrites the snapshot from the supplied current state and
// truncates the log. items is a copy of the table's state that the caller
// took beforehand; the table lock is not held here and items is not copied
// again.
func (w *wal) compact(items map[string]codec.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(items)
	if err != nil {
		return ldkerr.Fatal("StorageError", "marshal snapshot: "+err.Error())
	}
	snapPath := filepath.Join(w.dir, "snapshot.json")
	tmpPath := snapPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return ldkerr.Fatal("StorageError", "write snapshot: "+err.Error())
	}
	if err := os.Rename(tmpPath, snapPath); err != nil {
		return ldkerr.Fatal("StorageError", "install snapshot: "+err.Error())
	}

	if err := w.logFile.Close(); err != nil {
		return ldkerr.Fatal("StorageError", "close wal log: "+err.Error())
	}
	f, err := os.OpenFile(filepath.Join(w.dir, "wal.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return ldkerr.Fatal("StorageError", "reopen wal log: "+err.Error())
	}
	w.logFile = f
	w.entriesSince = 0
	return nil
}

func (w *wal) maybeCompact(items map[string]codec.Item) error {
	w.mu.Lock()
	due := w.entriesSince >= w.compactEvery
	w.mu.Unlock()
	if !due {
		return nil
	}
	return w.compact(items)
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logFile.Close()
}

// wipeTableDir removes a table's on-disk snapshot and log files ahead of a
// fresh, empty re-open.
func wipeTableDir(dataDir, tableName string) error {
	dir := filepath.Join(dataDir, "kv", tableName)
	if err := os.RemoveAll(dir); err != nil {
		return ldkerr.Fatal("StorageError", "wipe table directory: "+err.Error())
	}
	return nil
}
