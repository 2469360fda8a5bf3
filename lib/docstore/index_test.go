package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIndex(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    IndexRecord
		wantErr bool
	}{
		{name: "missing", data: "", want: IndexRecord{}},
		{name: "empty", data: "[]", want: IndexRecord{}},
		{name: "null", data: "null", want: IndexRecord{}},
		{
			name: "entries",
			data: `[{"model":"user","keys":["users_1"]},{"model":"group","keys":null}]`,
			want: IndexRecord{
				{Model: "user", Keys: []string{"users_1"}},
				{Model: "group", Keys: []string{}},
			},
		},
		{name: "broken", data: "{", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIndex([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndexEncode(t *testing.T) {
	data, err := IndexRecord(nil).encode()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	data, err = IndexRecord{newEntry("user", "a", "b", "a")}.encode()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"model":"user","keys":["a","b"]}]`, string(data))
}

func TestIndexFindFirstMatchWins(t *testing.T) {
	idx := IndexRecord{
		{Model: "group", Keys: []string{}},
		{Model: "user", Keys: []string{"first"}},
		{Model: "user", Keys: []string{"orphan"}},
	}

	assert.Equal(t, 1, idx.find("user"))
	assert.Equal(t, -1, idx.find("missing"))
	assert.Equal(t, 1, idx.duplicates("user"))
	assert.Equal(t, 0, idx.duplicates("group"))
	assert.Equal(t, []string{"first"}, idx.keys("user"))
	assert.Nil(t, idx.keys("missing"))
	assert.Equal(t, []string{"first", "orphan"}, idx.allKeys())
}

func TestEntryMutations(t *testing.T) {
	e := newEntry("user")
	assert.Equal(t, []string{}, e.Keys)

	assert.True(t, e.union("a", "b"))
	assert.False(t, e.union("b", "a"), "union of members must not change the entry")
	assert.True(t, e.union("c", "c"))
	assert.Equal(t, []string{"a", "b", "c"}, e.Keys)

	assert.True(t, e.remove("b"))
	assert.False(t, e.remove("b"))
	assert.Equal(t, []string{"a", "c"}, e.Keys)
}

func TestKeysReturnsCopy(t *testing.T) {
	idx := IndexRecord{newEntry("user", "a")}
	keys := idx.keys("user")
	keys[0] = "changed"
	assert.Equal(t, []string{"a"}, idx[0].Keys)
}
