package serializer

import (
	"reflect"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Set request
		*common.NewSetRequest("test-key", []byte("test-value")),

		// SetE request
		*common.NewSetERequest("session", []byte(`{"user":"u1"}`), 24*time.Hour),

		// Get response
		{
			MsgType: common.MsgTKVGet,
			Key:     "test-key",
			Value:   []byte("test-value"),
			Ok:      true,
		},

		// Delete with many keys
		*common.NewDeleteRequest("users_1", "users_2", "users_3"),

		// MSet request
		*common.NewMSetRequest(
			[]string{"users_1", "users_2"},
			[][]byte{[]byte(`{"id":"1"}`), []byte(`{"id":"2"}`)},
		),

		// MGet response
		{
			MsgType: common.MsgTKVMGet,
			Values:  [][]byte{[]byte("a"), []byte("b")},
			Found:   []bool{true, false},
		},

		// Info response
		*common.NewInfoResponse([]byte(`{"entries":3}`), nil),

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeResetsMessage tests that decoding into a used message leaves no stale fields
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTSuccess})
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			result := common.Message{
				MsgType: common.MsgTKVGet,
				Key:     "stale",
				Keys:    []string{"stale"},
				Value:   []byte("stale"),
				Ok:      true,
				Err:     "stale",
			}
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(result, common.Message{MsgType: common.MsgTSuccess}) {
				t.Errorf("stale fields survived: %+v", result)
			}
		})
	}
}

// TestMGetResponse tests that missing values survive every serializer
func TestMGetResponse(t *testing.T) {
	resp := common.NewMGetResponse([][]byte{[]byte("a"), nil, {}}, nil)

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(*resp)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(result.Found, []bool{true, false, true}) {
				t.Errorf("Found mismatch: %v", result.Found)
			}
			if len(result.Values) != 3 || string(result.Values[0]) != "a" {
				t.Errorf("Values mismatch: %q", result.Values)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTKVInfo; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType, err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType, err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s", msgType, result.MsgType)
				}
			}
		})
	}
}

func TestUnknownJSONMessageType(t *testing.T) {
	var msg common.Message
	err := NewJSONSerializer().Deserialize([]byte(`{"msg_type":"expire"}`), &msg)
	if err == nil {
		t.Fatal("expected an error for an unknown message type")
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty value slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTKVSet,
				Key:     "test",
				Value:   []byte{},
			},
		},
		{
			name: "Nil and empty elements in values",
			msg: common.Message{
				MsgType: common.MsgTKVMGet,
				Values:  [][]byte{nil, {}, []byte("x")},
				Found:   []bool{false, true, true},
			},
		},
		{
			name: "Empty key list",
			msg: common.Message{
				MsgType: common.MsgTKVDelete,
				Keys:    []string{},
			},
		},
		{
			name: "Empty keys in list",
			msg: common.Message{
				MsgType: common.MsgTKVMSet,
				Keys:    []string{"", "b"},
				Values:  [][]byte{[]byte("1"), []byte("2")},
			},
		},
		{
			name: "Negative ttl",
			msg: common.Message{
				MsgType: common.MsgTKVSetE,
				Key:     "k",
				TTL:     -time.Second,
			},
		},
		{
			name: "Empty meta slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTKVInfo,
				Meta:    []byte{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("mismatch after round trip:\nOriginal: %#v\nResult: %#v", tc.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // no room for the second flags byte
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0},
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 8, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Key count larger than data",
			data:        []byte{1, 0, 2, 0xff, 0xff, 0xff, 0x00},
			expectError: true,
		},
		{
			name:        "Truncated ttl",
			data:        []byte{1, 0, 4, 0, 0, 0, 1},
			expectError: true,
		},
		{
			name:        "Trailing bytes",
			data:        []byte{1, 0, 0, 42},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary"} {
		s, err := New(name)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("expected name %q, got %q", name, s.Name())
		}
	}

	if _, err := New("xml"); err == nil {
		t.Error("expected an error for an unknown serializer")
	}
}
