package expr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/local-web-services/ldk/internal/codec"
)

func TestConditionEquality(t *testing.T) {
	node, err := ParseCondition("#s = :v")
	require.NoError(t, err)

	ph := Placeholders{
		Names:  map[string]string{"#s": "status"},
		Values: map[string]codec.Value{":v": {Tag: "S", S: "ACTIVE"}},
	}
	item := map[string]interface{}{"status": "ACTIVE"}
	ok, err := Evaluate(node, item, ph)
	require.NoError(t, err)
	require.True(t, ok)

	item["status"] = "INACTIVE"
	ok, err = Evaluate(node, item, ph)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionAttributeExistsAndNot(t *testing.T) {
	node, err := ParseCondition("attribute_not_exists(pk) AND attribute_exists(other)")
	require.NoError(t, err)
	item := map[string]interface{}{"other": "x"}
	ok, err := Evaluate(node, item, Placeholders{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFilterBeginsWithAndBetween(t *testing.T) {
	node, err := ParseCondition("begins_with(#n, :p) AND age BETWEEN :lo AND :hi")
	require.NoError(t, err)
	ph := Placeholders{
		Names: map[string]string{"#n": "name"},
		Values: map[string]codec.Value{
			":p":  {Tag: "S", S: "al"},
			":lo": {Tag: "N", N: "10"},
			":hi": {Tag: "N", N: "40"},
		},
	}
	item := map[string]interface{}{"name": "alice", "age": codec.Number("30")}
	ok, err := Evaluate(node, item, ph)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUpdateSetAddRemove(t *testing.T) {
	actions, err := ParseUpdate("SET #c = #c + :one REMOVE stale ADD tags :t")
	require.NoError(t, err)

	ph := Placeholders{
		Names: map[string]string{"#c": "count"},
		Values: map[string]codec.Value{
			":one": {Tag: "N", N: "1"},
			":t":   {Tag: "SS", SS: []string{"x"}},
		},
	}
	item := map[string]interface{}{
		"count": codec.Number("5"),
		"stale": "gone",
		"tags":  []interface{}{"a"},
	}
	out, err := ApplyUpdate(actions, item, ph)
	require.NoError(t, err)
	require.Equal(t, float64(6), out["count"])
	_, exists := out["stale"]
	require.False(t, exists)
	require.ElementsMatch(t, []interface{}{"a", "x"}, out["tags"])
}

func TestConditionOrNotParens(t *testing.T) {
	node, err := ParseCondition("NOT (a = :v OR b = :v)")
	require.NoError(t, err)
	ph := Placeholders{Values: map[string]codec.Value{":v": {Tag: "N", N: "1"}}}
	item := map[string]interface{}{"a": codec.Number("2"), "b": codec.Number("3")}
	ok, err := Evaluate(node, item, ph)
	require.NoError(t, err)
	require.True(t, ok)
}
