package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	v := Value{Tag: "M", M: map[string]Value{
		"name": {Tag: "S", S: "alice"},
		"age":  {Tag: "N", N: "30"},
		"tags": {Tag: "SS", SS: []string{"a", "b"}},
	}}

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var out Value
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, "M", out.Tag)
	require.Equal(t, "alice", out.M["name"].S)
	require.Equal(t, "30", out.M["age"].N)
	require.ElementsMatch(t, []string{"a", "b"}, out.M["tags"].SS)
}

func TestNativeRoundTrip(t *testing.T) {
	item := Item{
		"name": {Tag: "S", S: "bob"},
		"age":  {Tag: "N", N: "42"},
	}
	native := ItemToNative(item)
	require.Equal(t, "bob", native["name"])
	require.Equal(t, Number("42"), native["age"])
	require.Equal(t, float64(42), native["age"].(Number).Float64())

	back := ItemFromNative(native)
	require.Equal(t, "S", back["name"].Tag)
	require.Equal(t, "N", back["age"].Tag)
}

func TestKeyString(t *testing.T) {
	s, err := KeyString(Value{Tag: "S", S: "pk1"}, ScalarString)
	require.NoError(t, err)
	require.Equal(t, "pk1", s)

	_, err = KeyString(Value{Tag: "N", N: "1"}, ScalarString)
	require.Error(t, err)
}
