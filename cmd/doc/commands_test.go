package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValues(t *testing.T) {
	tests := []struct {
		name   string
		values [][]byte
		want   string
	}{
		{"empty", [][]byte{}, `[]`},
		{"documents", [][]byte{[]byte(`{"id":"1"}`), []byte(`{"id":"2"}`)}, `[{"id":"1"},{"id":"2"}]`},
		{"missing", [][]byte{[]byte(`{"id":"1"}`), nil}, `[{"id":"1"},null]`},
		{"plain strings", [][]byte{[]byte("hello"), []byte(`say "hi"`)}, `["hello","say \"hi\""]`},
		{"mixed", [][]byte{[]byte("42"), []byte("hello"), nil}, `[42,"hello",null]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := encodeValues(tt.values)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
