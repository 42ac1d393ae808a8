package path

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractBasic(t *testing.T) {
	doc := map[string]interface{}{
		"v": 5.0,
		"nested": map[string]interface{}{
			"list": []interface{}{"a", "b", "c"},
		},
	}

	v, err := Extract(doc, nil, "$.v")
	require.NoError(t, err)
	require.Equal(t, 5.0, v)

	v, err = Extract(doc, nil, "$.nested.list[1]")
	require.NoError(t, err)
	require.Equal(t, "b", v)

	v, err = Extract(doc, nil, "$")
	require.NoError(t, err)
	require.Equal(t, doc, v)
}

func TestExtractContext(t *testing.T) {
	ctx := map[string]interface{}{
		"Map": map[string]interface{}{
			"Item": map[string]interface{}{"Value": "x", "Index": 2.0},
		},
	}
	v, err := Extract(nil, ctx, "$$.Map.Item.Value")
	require.NoError(t, err)
	require.Equal(t, "x", v)
}

func TestAssignCreatesIntermediate(t *testing.T) {
	doc := map[string]interface{}{"a": 1.0}
	out, err := Assign(doc, "$.b.c", "hello")
	require.NoError(t, err)
	m := out.(map[string]interface{})
	require.Equal(t, 1.0, m["a"])
	nested := m["b"].(map[string]interface{})
	require.Equal(t, "hello", nested["c"])
}

func TestAssignRoot(t *testing.T) {
	out, err := Assign(map[string]interface{}{"a": 1.0}, "$", map[string]interface{}{"b": 2.0})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"b": 2.0}, out)
}
