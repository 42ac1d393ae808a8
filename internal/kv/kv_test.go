package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/local-web-services/ldk/internal/codec"
	"github.com/local-web-services/ldk/internal/expr"
)

type recordingSink struct {
	records []StreamRecord
}

func (s *recordingSink) EmitKVRecord(rec StreamRecord) {
	s.records = append(s.records, rec)
}

func newTestEngine(t *testing.T, sink StreamSink) *Engine {
	t.Helper()
	return NewEngine(t.TempDir(), 50*time.Millisecond, sink)
}

func testTableDef(withIndex bool, withStream bool) TableDef {
	def := TableDef{
		Name:         "widgets",
		PartitionKey: KeyAttr{Name: "pk", Type: codec.ScalarString},
		SortKey:      &KeyAttr{Name: "sk", Type: codec.ScalarString},
	}
	if withIndex {
		def.Indexes = []IndexDef{{
			Name:         "by-status",
			Projection:   ProjectionKeysOnly,
			PartitionKey: KeyAttr{Name: "status", Type: codec.ScalarString},
		}}
	}
	if withStream {
		def.Stream = &StreamDef{ViewType: ViewBoth}
	}
	return def
}

func TestPutGetRoundTrip(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.CreateTable(testTableDef(false, false))
	require.NoError(t, err)

	tbl, err := e.Table("widgets")
	require.NoError(t, err)

	item := codec.Item{
		"pk":   {Tag: "S", S: "w1"},
		"sk":   {Tag: "S", S: "v1"},
		"name": {Tag: "S", S: "gadget"},
	}
	_, err = tbl.Put(item, PutOptions{})
	require.NoError(t, err)

	got, ok, err := tbl.Get(codec.Value{Tag: "S", S: "w1"}, &codec.Value{Tag: "S", S: "v1"}, GetOptions{StrongConsistency: true})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "gadget", got["name"].S)
}

func TestConditionalPutFailsWhenConditionUnmet(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.CreateTable(testTableDef(false, false))
	require.NoError(t, err)
	tbl, _ := e.Table("widgets")

	item := codec.Item{"pk": {Tag: "S", S: "w1"}, "sk": {Tag: "S", S: "v1"}}
	_, err = tbl.Put(item, PutOptions{})
	require.NoError(t, err)

	cond, err := expr.ParseCondition("attribute_not_exists(pk)")
	require.NoError(t, err)
	_, err = tbl.Put(item, PutOptions{Condition: cond})
	require.ErrorIs(t, err, expr.ErrConditionFailed)
}

func TestSecondaryIndexProjectionSkipsMissingAttribute(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.CreateTable(testTableDef(true, false))
	require.NoError(t, err)
	tbl, _ := e.Table("widgets")

	withStatus := codec.Item{"pk": {Tag: "S", S: "w1"}, "sk": {Tag: "S", S: "v1"}, "status": {Tag: "S", S: "OPEN"}}
	withoutStatus := codec.Item{"pk": {Tag: "S", S: "w2"}, "sk": {Tag: "S", S: "v1"}}
	_, err = tbl.Put(withStatus, PutOptions{})
	require.NoError(t, err)
	_, err = tbl.Put(withoutStatus, PutOptions{})
	require.NoError(t, err)

	results, _, err := tbl.Query(QueryOptions{
		IndexName:    "by-status",
		PartitionKey: codec.Value{Tag: "S", S: "OPEN"},
		ScanForward:  true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "w1", results[0]["pk"].S)
}

func TestBoundedStalenessReturnsPreviousSnapshotWithinWindow(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.CreateTable(testTableDef(false, false))
	require.NoError(t, err)
	tbl, _ := e.Table("widgets")

	first := codec.Item{"pk": {Tag: "S", S: "w1"}, "sk": {Tag: "S", S: "v1"}, "rev": {Tag: "N", N: "1"}}
	_, err = tbl.Put(first, PutOptions{})
	require.NoError(t, err)

	second := codec.Item{"pk": {Tag: "S", S: "w1"}, "sk": {Tag: "S", S: "v1"}, "rev": {Tag: "N", N: "2"}}
	_, err = tbl.Put(second, PutOptions{})
	require.NoError(t, err)

	strong, ok, err := tbl.Get(codec.Value{Tag: "S", S: "w1"}, &codec.Value{Tag: "S", S: "v1"}, GetOptions{StrongConsistency: true})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", strong["rev"].N)

	eventual, ok, err := tbl.Get(codec.Value{Tag: "S", S: "w1"}, &codec.Value{Tag: "S", S: "v1"}, GetOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", eventual["rev"].N)

	time.Sleep(60 * time.Millisecond)
	settled, ok, err := tbl.Get(codec.Value{Tag: "S", S: "w1"}, &codec.Value{Tag: "S", S: "v1"}, GetOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", settled["rev"].N)
}

func TestStreamSequenceNumbersAreMonotonic(t *testing.T) {
	sink := &recordingSink{}
	e := newTestEngine(t, sink)
	_, err := e.CreateTable(testTableDef(false, true))
	require.NoError(t, err)
	tbl, _ := e.Table("widgets")

	for i := 0; i < 3; i++ {
		item := codec.Item{"pk": {Tag: "S", S: "w1"}, "sk": {Tag: "S", S: "v1"}, "n": {Tag: "N", N: "1"}}
		_, err := tbl.Put(item, PutOptions{})
		require.NoError(t, err)
	}
	_, _, err = tbl.Delete(codec.Value{Tag: "S", S: "w1"}, &codec.Value{Tag: "S", S: "v1"}, DeleteOptions{})
	require.NoError(t, err)

	require.Len(t, sink.records, 4)
	for i := 1; i < len(sink.records); i++ {
		require.Greater(t, sink.records[i].SequenceNumber, sink.records[i-1].SequenceNumber)
	}
	require.Equal(t, EventInsert, sink.records[0].EventName)
	require.Equal(t, EventModify, sink.records[1].EventName)
	require.Equal(t, EventRemove, sink.records[3].EventName)
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.CreateTable(testTableDef(true, false))
	require.NoError(t, err)
	tbl, _ := e.Table("widgets")

	item := codec.Item{"pk": {Tag: "S", S: "w1"}, "sk": {Tag: "S", S: "v1"}, "status": {Tag: "S", S: "OPEN"}}
	_, err = tbl.Put(item, PutOptions{})
	require.NoError(t, err)
	_, _, err = tbl.Delete(codec.Value{Tag: "S", S: "w1"}, &codec.Value{Tag: "S", S: "v1"}, DeleteOptions{})
	require.NoError(t, err)

	results, _, err := tbl.Query(QueryOptions{
		IndexName:    "by-status",
		PartitionKey: codec.Value{Tag: "S", S: "OPEN"},
		ScanForward:  true,
	})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestUpdateAppliesExpression(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.CreateTable(testTableDef(false, false))
	require.NoError(t, err)
	tbl, _ := e.Table("widgets")

	actions, err := expr.ParseUpdate("SET #c = if_not_exists(#c, :zero) + :one")
	require.NoError(t, err)
	ph := expr.Placeholders{
		Names:  map[string]string{"#c": "count"},
		Values: map[string]codec.Value{":zero": {Tag: "N", N: "0"}, ":one": {Tag: "N", N: "1"}},
	}

	_, newItem, err := tbl.Update(codec.Value{Tag: "S", S: "w1"}, &codec.Value{Tag: "S", S: "v1"}, UpdateOptions{
		UpdateActions: actions,
		Placeholders:  ph,
	})
	require.NoError(t, err)
	require.Equal(t, "1", newItem["count"].N)
}
