package kv

import (
	"encoding/base64"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/local-web-services/ldk/internal/codec"
	"github.com/local-web-services/ldk/internal/expr"
	"github.com/local-web-services/ldk/internal/ldkerr"
)

// versionRecord backs the bounded-staleness consistency simulation (§4.3):
// a read without strong consistency sees PrevSnapshot while WriteAt is
// younger than the configured consistency window.
type versionRecord struct {
	WriteAt      time.Time
	PrevSnapshot codec.Item // nil if the key didn't previously exist
	PrevExists   bool
}

// Table is the per-table engine: base rows, derived index rows, and the
// consistency/version map, all guarded by one mutex per spec.md §5 (the
// atomicity unit is one engine operation).
type Table struct {
	mu       sync.RWMutex
	def      TableDef
	wal      *wal
	items    map[string]codec.Item            // composite base key -> item
	indexes  map[string]map[string][]string    // index name -> index key -> base keys (insertion order)
	versions map[string]versionRecord
	seq      uint64
	sink     StreamSink
	consistencyWindow time.Duration
}

func newTable(def TableDef, dataDir string, consistencyWindow time.Duration, sink StreamSink) (*Table, error) {
	w, items, err := openWAL(dataDir, def.Name)
	if err != nil {
		return nil, err
	}
	t := &Table{
		def:               def,
		wal:               w,
		items:             items,
		indexes:           make(map[string]map[string][]string),
		versions:          make(map[string]versionRecord),
		sink:              sink,
		consistencyWindow: consistencyWindow,
	}
	for _, idx := range def.Indexes {
		t.indexes[idx.Name] = make(map[string][]string)
	}
	for key, item := range items {
		t.indexAllLocked(key, item)
	}
	return t, nil
}

// DefPartitionKeyName returns the table's partition key attribute name.
func (t *Table) DefPartitionKeyName() string { return t.def.PartitionKey.Name }

// DefSortKeyName returns the table's sort key attribute name, or "" if the
// table has no sort key.
func (t *Table) DefSortKeyName() string {
	if t.def.SortKey == nil {
		return ""
	}
	return t.def.SortKey.Name
}

func (t *Table) baseKey(item codec.Item) (string, error) {
	pk, ok := item[t.def.PartitionKey.Name]
	if !ok {
		return "", ldkerr.Client("ValidationException", "missing partition key "+t.def.PartitionKey.Name)
	}
	pkStr, err := codec.KeyString(pk, t.def.PartitionKey.Type)
	if err != nil {
		return "", err
	}
	if t.def.SortKey == nil {
		return pkStr, nil
	}
	sk, ok := item[t.def.SortKey.Name]
	if !ok {
		return "", ldkerr.Client("ValidationException", "missing sort key "+t.def.SortKey.Name)
	}
	skStr, err := codec.KeyString(sk, t.def.SortKey.Type)
	if err != nil {
		return "", err
	}
	return pkStr + "\x00" + skStr, nil
}

func (t *Table) keyFromParts(pk codec.Value, sk *codec.Value) (string, error) {
	item := codec.Item{t.def.PartitionKey.Name: pk}
	if t.def.SortKey != nil && sk != nil {
		item[t.def.SortKey.Name] = *sk
	}
	return t.baseKey(item)
}

// indexKeyLocked computes the key an item projects to within idx, and
// whether the item carries that index's partition key at all. Per the
// resolved Open Question in spec.md §9, a missing index partition key means
// "skip" — the item simply has no row in that index.
func indexKeyLocked(idx IndexDef, item codec.Item) (string, bool) {
	pk, ok := item[idx.PartitionKey.Name]
	if !ok {
		return "", false
	}
	pkStr, err := codec.KeyString(pk, idx.PartitionKey.Type)
	if err != nil {
		return "", false
	}
	if idx.SortKey == nil {
		return pkStr, true
	}
	sk, ok := item[idx.SortKey.Name]
	if !ok {
		return pkStr + "\x00", true
	}
	skStr, err := codec.KeyString(sk, idx.SortKey.Type)
	if err != nil {
		return pkStr + "\x00", true
	}
	return pkStr + "\x00" + skStr, true
}

func (t *Table) project(idx IndexDef, item codec.Item) codec.Item {
	switch idx.Projection {
	case ProjectionAll:
		out := make(codec.Item, len(item))
		for k, v := range item {
			out[k] = v
		}
		return out
	case ProjectionInclude:
		out := make(codec.Item, len(idx.IncludeAttrs)+4)
		for _, name := range idx.IncludeAttrs {
			if v, ok := item[name]; ok {
				out[name] = v
			}
		}
		t.copyKeyAttrs(out, item, idx)
		return out
	default: // ProjectionKeysOnly
		out := codec.Item{}
		t.copyKeyAttrs(out, item, idx)
		return out
	}
}

// copyKeyAttrs copies the table's base primary key plus the index's own key
// attributes into dst, so every projection mode still lets a caller fetch
// the full base item by key.
func (t *Table) copyKeyAttrs(dst, src codec.Item, idx IndexDef) {
	names := []string{t.def.PartitionKey.Name}
	if t.def.SortKey != nil {
		names = append(names, t.def.SortKey.Name)
	}
	names = append(names, idx.PartitionKey.Name)
	if idx.SortKey != nil {
		names = append(names, idx.SortKey.Name)
	}
	for _, name := range names {
		if v, ok := src[name]; ok {
			dst[name] = v
		}
	}
}

// indexAllLocked (re)writes every secondary index row for baseKey/item,
// called under t.mu.
func (t *Table) indexAllLocked(baseKey string, item codec.Item) {
	for _, idx := range t.def.Indexes {
		t.reindexOneLocked(idx, baseKey, item)
	}
}

func (t *Table) reindexOneLocked(idx IndexDef, baseKey string, item codec.Item) {
	t.deindexOneLocked(idx, baseKey)
	ikey, ok := indexKeyLocked(idx, item)
	if !ok {
		return
	}
	rows := t.indexes[idx.Name]
	rows[ikey] = appendUnique(rows[ikey], baseKey)
}

func (t *Table) deindexOneLocked(idx IndexDef, baseKey string) {
	rows := t.indexes[idx.Name]
	for k, baseKeys := range rows {
		filtered := baseKeys[:0]
		for _, bk := range baseKeys {
			if bk != baseKey {
				filtered = append(filtered, bk)
			}
		}
		if len(filtered) == 0 {
			delete(rows, k)
		} else {
			rows[k] = filtered
		}
	}
}

func (t *Table) deindexAllLocked(baseKey string) {
	for _, idx := range t.def.Indexes {
		t.deindexOneLocked(idx, baseKey)
	}
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// PutOptions configures a PutItem call.
type PutOptions struct {
	Condition    expr.Node
	Placeholders expr.Placeholders
	ReturnOld    bool
}

// PutResult carries the previous item, when requested or needed for stream emission.
type PutResult struct {
	OldItem codec.Item
	Existed bool
}

// Put inserts or replaces an item. Per §4.3: fetch old item, write base row,
// update every secondary index, commit atomically, then emit a stream event.
func (t *Table) Put(item codec.Item, opts PutOptions) (PutResult, error) {
	key, err := t.baseKey(item)
	if err != nil {
		return PutResult{}, err
	}

	t.mu.Lock()
	old, existed := t.items[key]

	if opts.Condition != nil {
		subject := old
		if !existed {
			subject = codec.Item{}
		}
		ok, err := expr.Evaluate(opts.Condition, codec.ItemToNative(subject), opts.Placeholders)
		if err != nil {
			t.mu.Unlock()
			return PutResult{}, ldkerr.Client("ValidationException", err.Error())
		}
		if !ok {
			t.mu.Unlock()
			return PutResult{}, expr.ErrConditionFailed
		}
	}

	t.items[key] = item
	t.indexAllLocked(key, item)
	t.recordVersionLocked(key, old, existed)
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	if err := t.wal.appendPut(key, item); err != nil {
		return PutResult{}, err
	}
	_ = t.wal.maybeCompact(t.snapshotCopy())

	t.emitStream(key, existed, old, item, seq)

	return PutResult{OldItem: old, Existed: existed}, nil
}

func (t *Table) snapshotCopy() map[string]codec.Item {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]codec.Item, len(t.items))
	for k, v := range t.items {
		out[k] = v
	}
	return out
}

func (t *Table) recordVersionLocked(key string, old codec.Item, existed bool) {
	t.versions[key] = versionRecord{WriteAt: time.Now(), PrevSnapshot: old, PrevExists: existed}
}

func (t *Table) emitStream(key string, existed bool, old, newItem codec.Item, seq uint64) {
	if t.def.Stream == nil || t.sink == nil {
		return
	}
	name := EventModify
	if !existed {
		name = EventInsert
	}
	rec := t.buildStreamRecord(key, name, old, newItem, seq)
	t.sink.EmitKVRecord(rec)
}

func (t *Table) buildStreamRecord(key string, name EventName, old, newItem codec.Item, seq uint64) StreamRecord {
	keys := codec.Item{}
	pk, sk := t.splitKey(key)
	keys[t.def.PartitionKey.Name] = pk
	if t.def.SortKey != nil && sk != nil {
		keys[t.def.SortKey.Name] = *sk
	}

	rec := StreamRecord{
		TableName:      t.def.Name,
		EventName:      name,
		Keys:           keys,
		SequenceNumber: seq,
		ApproxTime:     time.Now(),
	}
	switch t.def.Stream.ViewType {
	case ViewNewImage:
		rec.NewImage = newItem
	case ViewOldImage:
		rec.OldImage = old
	case ViewBoth:
		rec.NewImage = newItem
		rec.OldImage = old
	}
	return rec
}

func valueForScalar(typ codec.ScalarType, raw string) codec.Value {
	switch typ {
	case codec.ScalarNumber:
		return codec.Value{Tag: "N", N: raw}
	case codec.ScalarBinary:
		b, _ := base64.StdEncoding.DecodeString(raw)
		return codec.Value{Tag: "B", B: b}
	default:
		return codec.Value{Tag: "S", S: raw}
	}
}

func (t *Table) splitKey(key string) (codec.Value, *codec.Value) {
	parts := strings.SplitN(key, "\x00", 2)
	pk := valueForScalar(t.def.PartitionKey.Type, parts[0])
	if len(parts) < 2 || t.def.SortKey == nil {
		return pk, nil
	}
	sk := valueForScalar(t.def.SortKey.Type, parts[1])
	return pk, &sk
}

// GetOptions configures a GetItem call.
type GetOptions struct {
	StrongConsistency bool
}

// Get fetches a single item by primary key, honoring the bounded-staleness
// simulation when StrongConsistency is false.
func (t *Table) Get(pk codec.Value, sk *codec.Value, opts GetOptions) (codec.Item, bool, error) {
	key, err := t.keyFromParts(pk, sk)
	if err != nil {
		return nil, false, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if !opts.StrongConsistency {
		if ver, ok := t.versions[key]; ok && time.Since(ver.WriteAt) < t.consistencyWindow {
			if !ver.PrevExists {
				return nil, false, nil
			}
			return ver.PrevSnapshot, true, nil
		}
	}

	item, ok := t.items[key]
	return item, ok, nil
}

// DeleteOptions configures a DeleteItem call.
type DeleteOptions struct {
	Condition    expr.Node
	Placeholders expr.Placeholders
}

// Delete removes the base row and every derived index row for a key.
func (t *Table) Delete(pk codec.Value, sk *codec.Value, opts DeleteOptions) (codec.Item, bool, error) {
	key, err := t.keyFromParts(pk, sk)
	if err != nil {
		return nil, false, err
	}

	t.mu.Lock()
	old, existed := t.items[key]

	if opts.Condition != nil {
		subject := old
		if !existed {
			subject = codec.Item{}
		}
		ok, err := expr.Evaluate(opts.Condition, codec.ItemToNative(subject), opts.Placeholders)
		if err != nil {
			t.mu.Unlock()
			return nil, false, ldkerr.Client("ValidationException", err.Error())
		}
		if !ok {
			t.mu.Unlock()
			return nil, false, expr.ErrConditionFailed
		}
	}

	if !existed {
		t.mu.Unlock()
		return nil, false, nil
	}

	delete(t.items, key)
	t.deindexAllLocked(key)
	t.recordVersionLocked(key, old, true)
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	if err := t.wal.appendDelete(key); err != nil {
		return nil, false, err
	}
	_ = t.wal.maybeCompact(t.snapshotCopy())

	if t.def.Stream != nil && t.sink != nil {
		rec := t.buildStreamRecord(key, EventRemove, old, nil, seq)
		t.sink.EmitKVRecord(rec)
	}

	return old, true, nil
}

// UpdateOptions configures an UpdateItem call.
type UpdateOptions struct {
	UpdateActions []expr.UpdateAction
	Condition     expr.Node
	Placeholders  expr.Placeholders
}

// Update applies an update expression to an item, creating it if absent,
// subject to an optional condition expression evaluated against the
// pre-update item.
func (t *Table) Update(pk codec.Value, sk *codec.Value, opts UpdateOptions) (codec.Item, codec.Item, error) {
	item := codec.Item{t.def.PartitionKey.Name: pk}
	if t.def.SortKey != nil && sk != nil {
		item[t.def.SortKey.Name] = *sk
	}
	key, err := t.baseKey(item)
	if err != nil {
		return nil, nil, err
	}

	t.mu.Lock()
	old, existed := t.items[key]

	subject := old
	if !existed {
		subject = codec.Item{t.def.PartitionKey.Name: pk}
		if t.def.SortKey != nil && sk != nil {
			subject[t.def.SortKey.Name] = *sk
		}
	}

	if opts.Condition != nil {
		ok, err := expr.Evaluate(opts.Condition, codec.ItemToNative(subject), opts.Placeholders)
		if err != nil {
			t.mu.Unlock()
			return nil, nil, ldkerr.Client("ValidationException", err.Error())
		}
		if !ok {
			t.mu.Unlock()
			return nil, nil, expr.ErrConditionFailed
		}
	}

	native := codec.ItemToNative(subject)
	updated, err := expr.ApplyUpdate(opts.UpdateActions, native, opts.Placeholders)
	if err != nil {
		t.mu.Unlock()
		return nil, nil, ldkerr.Client("ValidationException", err.Error())
	}
	newItem := codec.ItemFromNative(updated)
	newItem[t.def.PartitionKey.Name] = pk
	if t.def.SortKey != nil && sk != nil {
		newItem[t.def.SortKey.Name] = *sk
	}

	t.items[key] = newItem
	t.indexAllLocked(key, newItem)
	t.recordVersionLocked(key, old, existed)
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	if err := t.wal.appendPut(key, newItem); err != nil {
		return nil, nil, err
	}
	_ = t.wal.maybeCompact(t.snapshotCopy())

	t.emitStream(key, existed, old, newItem, seq)

	return old, newItem, nil
}

// QueryOptions configures a Query call (against either the base table or a
// named secondary index).
type QueryOptions struct {
	IndexName         string // empty = base table
	PartitionKey      codec.Value
	SortKeyCondition  func(sortKeyStr string) bool
	Filter            expr.Node
	Placeholders      expr.Placeholders
	Limit             int
	ExclusiveStartKey string
	ScanForward       bool
	StrongConsistency bool
}

// Query returns items matching a partition key (and optional sort-key range)
// on the base table or a secondary index, then applies the filter
// expression. Results are returned in base-key sorted order; ScanForward
// controls ascending/descending.
func (t *Table) Query(opts QueryOptions) ([]codec.Item, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidateKeys []string
	if opts.IndexName == "" {
		pkStr, err := codec.KeyString(opts.PartitionKey, t.def.PartitionKey.Type)
		if err != nil {
			return nil, "", err
		}
		for key := range t.items {
			if strings.HasPrefix(key, pkStr+"\x00") || key == pkStr {
				candidateKeys = append(candidateKeys, key)
			}
		}
	} else {
		idx := t.findIndex(opts.IndexName)
		if idx == nil {
			return nil, "", ldkerr.Client("ValidationException", "unknown index "+opts.IndexName)
		}
		pkStr, err := codec.KeyString(opts.PartitionKey, idx.PartitionKey.Type)
		if err != nil {
			return nil, "", err
		}
		rows := t.indexes[idx.Name]
		for ikey, baseKeys := range rows {
			if strings.HasPrefix(ikey, pkStr+"\x00") || ikey == pkStr {
				candidateKeys = append(candidateKeys, baseKeys...)
			}
		}
	}

	sort.Strings(candidateKeys)
	if !opts.ScanForward {
		reverse(candidateKeys)
	}

	var out []codec.Item
	started := opts.ExclusiveStartKey == ""
	for _, key := range candidateKeys {
		if !started {
			if key == opts.ExclusiveStartKey {
				started = true
			}
			continue
		}
		item, ok := t.items[key]
		if !ok {
			continue
		}
		if opts.SortKeyCondition != nil {
			condKey := key
			if opts.IndexName != "" {
				condKey, _ = indexKeyLocked(*t.findIndex(opts.IndexName), item)
			}
			_, skPart := t.splitComposite(condKey)
			if !opts.SortKeyCondition(skPart) {
				continue
			}
		}
		var projected codec.Item = item
		if opts.IndexName != "" {
			idx := t.findIndex(opts.IndexName)
			projected = t.project(*idx, item)
		}
		if opts.Filter != nil {
			ok, err := expr.Evaluate(opts.Filter, codec.ItemToNative(item), opts.Placeholders)
			if err != nil {
				return nil, "", ldkerr.Client("ValidationException", err.Error())
			}
			if !ok {
				continue
			}
		}
		out = append(out, projected)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return out, key, nil
		}
	}
	return out, "", nil
}

func (t *Table) splitComposite(key string) (string, string) {
	parts := strings.SplitN(key, "\x00", 2)
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func (t *Table) findIndex(name string) *IndexDef {
	for i := range t.def.Indexes {
		if t.def.Indexes[i].Name == name {
			return &t.def.Indexes[i]
		}
	}
	return nil
}

// ScanOptions configures a full-table Scan.
type ScanOptions struct {
	Filter            expr.Node
	Placeholders      expr.Placeholders
	Limit             int
	ExclusiveStartKey string
}

// Scan returns every item in base-key order, subject to Filter and paging.
func (t *Table) Scan(opts ScanOptions) ([]codec.Item, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []codec.Item
	started := opts.ExclusiveStartKey == ""
	for _, key := range keys {
		if !started {
			if key == opts.ExclusiveStartKey {
				started = true
			}
			continue
		}
		item := t.items[key]
		if opts.Filter != nil {
			ok, err := expr.Evaluate(opts.Filter, codec.ItemToNative(item), opts.Placeholders)
			if err != nil {
				return nil, "", ldkerr.Client("ValidationException", err.Error())
			}
			if !ok {
				continue
			}
		}
		out = append(out, item)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return out, key, nil
		}
	}
	return out, "", nil
}

// Close flushes the table's WAL file handle.
func (t *Table) Close() error { return t.wal.close() }
