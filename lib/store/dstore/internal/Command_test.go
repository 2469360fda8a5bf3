package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key and value",
			command: Command{
				Type:     CommandTSetE,
				Keys:     []string{"testkey"},
				Values:   [][]byte{[]byte("testvalue")},
				DeleteAt: 100,
			},
			expected: 1 + 8 + 4 + (4 + 7) + (4 + 9), // Header + Key + Value
		},
		{
			name: "Delete with two keys",
			command: Command{
				Type: CommandTDelete,
				Keys: []string{"a", "bc"},
			},
			expected: 1 + 8 + 4 + (4 + 1 + 4) + (4 + 2 + 4),
		},
		{
			name:     "Empty command",
			command:  Command{Type: CommandTSet},
			expected: 1 + 8 + 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Standard command with value",
			command: Command{
				Type:     CommandTSetE,
				Keys:     []string{"testkey"},
				Values:   [][]byte{[]byte("testvalue")},
				DeleteAt: 1_700_000_000_000_000_000,
			},
		},
		{
			name: "Delete without values",
			command: Command{
				Type: CommandTDelete,
				Keys: []string{"users_1", "users_2", "users_3"},
			},
		},
		{
			name: "Batch set",
			command: Command{
				Type:   CommandTSet,
				Keys:   []string{"users_1", "users_2"},
				Values: [][]byte{[]byte(`{"id":"1"}`), []byte(`{"id":"2"}`)},
			},
		},
		{
			name: "Command with empty key and value",
			command: Command{
				Type:   CommandTSetIfUnset,
				Keys:   []string{""},
				Values: [][]byte{nil},
			},
		},
		{
			name: "Command with binary value",
			command: Command{
				Type:   CommandTSet,
				Keys:   []string{"binary"},
				Values: [][]byte{{0, 1, 2, 3, 254, 255}},
			},
		},
		{
			name: "Command with Unicode key",
			command: Command{
				Type:   CommandTSet,
				Keys:   []string{"你好世界"}, // Hello World in Chinese
				Values: [][]byte{[]byte("unicode test")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var newCommand Command
			err := newCommand.Deserialize(data)
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if newCommand.DeleteAt != tt.command.DeleteAt {
				t.Errorf("DeleteAt mismatch: got %v, want %v", newCommand.DeleteAt, tt.command.DeleteAt)
			}
			if len(newCommand.Keys) != len(tt.command.Keys) {
				t.Fatalf("Key count mismatch: got %d, want %d", len(newCommand.Keys), len(tt.command.Keys))
			}
			for i, key := range tt.command.Keys {
				if newCommand.Keys[i] != key {
					t.Errorf("Key %d mismatch: got %q, want %q", i, newCommand.Keys[i], key)
				}
				var want []byte
				if i < len(tt.command.Values) {
					want = tt.command.Values[i]
				}
				if !bytes.Equal(newCommand.Values[i], want) {
					t.Errorf("Value %d mismatch: got %v, want %v", i, newCommand.Values[i], want)
				}
			}

			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d",
					tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	header := func(count uint32, extra int) []byte {
		data := make([]byte, headerSize+extra)
		data[0] = byte(CommandTSet)
		binary.BigEndian.PutUint32(data[9:13], count)
		return data
	}

	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectedErr: "data too short for command",
		},
		{
			name:        "Data too short (less than header)",
			data:        []byte{1, 2, 3, 4, 5},
			expectedErr: "data too short for command",
		},
		{
			name:        "Count exceeds data",
			data:        header(1, 0),
			expectedErr: "data too short for 1 keys",
		},
		{
			name: "Invalid key length",
			data: func() []byte {
				data := header(1, 8)
				binary.BigEndian.PutUint32(data[headerSize:headerSize+4], 1000)
				return data
			}(),
			expectedErr: "key 0: data too short for chunk of length 1000",
		},
		{
			name:        "Trailing bytes",
			data:        header(0, 3),
			expectedErr: "3 trailing bytes after command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)

			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{
		Type:     CommandTSetE,
		Keys:     []string{"testkey"},
		Values:   [][]byte{[]byte("testvalue")},
		DeleteAt: 12345,
	}

	expected := make([]byte, cmd.SizeBytes())
	expected[0] = byte(CommandTSetE)
	binary.BigEndian.PutUint64(expected[1:9], 12345)
	binary.BigEndian.PutUint32(expected[9:13], 1)
	binary.BigEndian.PutUint32(expected[13:17], 7)
	copy(expected[17:24], "testkey")
	binary.BigEndian.PutUint32(expected[24:28], 9)
	copy(expected[28:], "testvalue")

	serialized := cmd.Serialize()
	if !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}
