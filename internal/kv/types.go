// Package kv implements component D: the key-value store engine backing the
// KV service. Each table is a persistent, per-table store maintained with an
// append-only write-ahead log plus periodic compaction (the design note in
// spec.md §9 directs targets without an embedded relational/indexing
// library to implement storage this way; the engine's external contract
// never exposes SQL). Secondary indexes are maintained synchronously on
// every base-table write.
package kv

import (
	"time"

	"github.com/local-web-services/ldk/internal/codec"
)

// ProjectionMode controls how much of a base item a secondary index copies.
type ProjectionMode string

const (
	ProjectionAll       ProjectionMode = "ALL"
	ProjectionKeysOnly  ProjectionMode = "KEYS_ONLY"
	ProjectionInclude   ProjectionMode = "INCLUDE"
)

// KeyAttr names a key attribute and its scalar type.
type KeyAttr struct {
	Name string
	Type codec.ScalarType
}

// IndexDef describes one secondary index.
type IndexDef struct {
	Name           string
	Projection     ProjectionMode
	IncludeAttrs   []string // only used when Projection == ProjectionInclude
	PartitionKey   KeyAttr
	SortKey        *KeyAttr
}

// TableDef is the immutable definition of a table, supplied at creation.
type TableDef struct {
	Name         string
	PartitionKey KeyAttr
	SortKey      *KeyAttr
	Indexes      []IndexDef
	Stream       *StreamDef
}

// StreamViewType controls what images accompany a change event.
type StreamViewType string

const (
	ViewKeysOnly StreamViewType = "KEYS_ONLY"
	ViewNewImage StreamViewType = "NEW_IMAGE"
	ViewOldImage StreamViewType = "OLD_IMAGE"
	ViewBoth     StreamViewType = "NEW_AND_OLD_IMAGES"
)

// StreamDef is a table's change-stream configuration.
type StreamDef struct {
	ViewType StreamViewType
}

// EventName classifies a stream record.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// StreamRecord is one change-stream event, handed to the fabric for
// batched dispatch to registered function handlers.
type StreamRecord struct {
	TableName      string
	EventName      EventName
	Keys           codec.Item
	NewImage       codec.Item
	OldImage       codec.Item
	SequenceNumber uint64
	ApproxTime     time.Time
}

// StreamSink receives stream records as they are committed. The event
// propagation fabric (component J) implements this; the KV engine never
// imports the fabric package directly, avoiding an import cycle.
type StreamSink interface {
	EmitKVRecord(rec StreamRecord)
}
