package hierkey

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyJSON(t *testing.T) {
	key := Key{Group{"Anonymous Hospital", "0003-30002"}, Leaf("doc1"), Max{}}

	data, err := json.Marshal(key)
	require.NoError(t, err)
	assert.JSONEq(t, `[["Anonymous Hospital","0003-30002"],"doc1",{}]`, string(data))

	var decoded Key
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, key, decoded)
}

func TestEmptyGroupMarshalsAsArray(t *testing.T) {
	data, err := json.Marshal(Key{Group(nil)})
	require.NoError(t, err)
	assert.Equal(t, `[[]]`, string(data))
}

func TestUnmarshalNonStringMembers(t *testing.T) {
	var key Key
	require.NoError(t, json.Unmarshal([]byte(`[["A", 7, null], 3.5, true]`), &key))
	assert.Equal(t, Key{Group{"A", "7", "null"}, Leaf("3.5"), Leaf("true")}, key)
}

func TestUnmarshalScalarKey(t *testing.T) {
	var key Key
	require.NoError(t, json.Unmarshal([]byte(`"solo"`), &key))
	assert.Equal(t, Key{Leaf("solo")}, key)
}

func TestFromValueYAMLShapes(t *testing.T) {
	key, err := FromValue([]interface{}{
		[]interface{}{"HospitalA", "P1"},
		"doc1",
		map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, Key{Group{"HospitalA", "P1"}, Leaf("doc1"), Max{}}, key)
}

func TestKeyPrefix(t *testing.T) {
	key := Key{Group{"A", "1"}, Group{"S", "2"}, Leaf("x")}
	assert.True(t, key.HasPrefix(Key{Group{"A", "1"}}))
	assert.True(t, key.HasPrefix(Key{}))
	assert.False(t, key.HasPrefix(Key{Group{"A"}}))
	assert.False(t, Key{Leaf("x")}.HasPrefix(key))
	assert.Equal(t, Key{Group{"A", "1"}}, key.Truncate(1))
	assert.Equal(t, key, key.Truncate(10))
	assert.True(t, key.Truncate(2).Equal(Key{Group{"A", "1"}, Group{"S", "2"}}))
}

func TestAppendDoesNotAlias(t *testing.T) {
	base := make(Key, 1, 4)
	base[0] = Group{"A"}
	first := base.Append(Leaf("x"))
	second := base.Append(Max{})
	assert.Equal(t, Leaf("x"), first[1])
	assert.Equal(t, Max{}, second[1])
}

func TestCollation(t *testing.T) {
	keys := []Key{
		{Max{}},
		{Group{"B"}},
		{Group{"A", "2"}},
		{Leaf("z")},
		{Group{"A"}},
		{Group{"A"}, Leaf("x")},
		{Leaf("a")},
	}
	sort.Slice(keys, func(i, j int) bool { return Compare(keys[i], keys[j]) < 0 })

	assert.Equal(t, []Key{
		{Leaf("a")},
		{Leaf("z")},
		{Group{"A"}},
		{Group{"A"}, Leaf("x")},
		{Group{"A", "2"}},
		{Group{"B"}},
		{Max{}},
	}, keys)
}

func TestMaxBoundsChildren(t *testing.T) {
	start := Key{Group{"A", "1"}}
	end := start.Append(Max{})
	child := Key{Group{"A", "1"}, Group{"Study", "9"}, Leaf("doc")}
	sibling := Key{Group{"A", "2"}}

	assert.True(t, Compare(start, child) <= 0)
	assert.True(t, Compare(child, end) <= 0)
	assert.Equal(t, 1, Compare(sibling, end))
}
