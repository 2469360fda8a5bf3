package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key    string        `json:"key,omitempty"`    // Used for: Set, SetE, SetEIfUnset, Get, Has
	Keys   []string      `json:"keys,omitempty"`   // Used for: Delete, MGet, MSet
	TTL    time.Duration `json:"ttl,omitempty"`    // Used for: SetE, SetEIfUnset
	Value  []byte        `json:"value,omitempty"`  // Used for: Set (request), Get (response)
	Values [][]byte      `json:"values,omitempty"` // Used for: MSet (request), MGet (response)

	// Response only fields
	Ok    bool   `json:"ok,omitempty"`    // Used for: Get, Has responses
	Found []bool `json:"found,omitempty"` // Used for: MGet responses, one flag per key
	Err   string `json:"err,omitempty"`   // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info responses (json encoded db.DatabaseInfo)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVSet,
		Key:     key,
		Value:   value,
	}
}

// NewSetERequest creates a new SetE request
func NewSetERequest(key string, value []byte, ttl time.Duration) *Message {
	return &Message{
		MsgType: MsgTKVSetE,
		Key:     key,
		Value:   value,
		TTL:     ttl,
	}
}

// NewSetEIfUnsetRequest creates a new SetEIfUnset request
func NewSetEIfUnsetRequest(key string, value []byte, ttl time.Duration) *Message {
	return &Message{
		MsgType: MsgTKVSetEIfUnset,
		Key:     key,
		Value:   value,
		TTL:     ttl,
	}
}

// NewDeleteRequest creates a new Delete request for one or more keys
func NewDeleteRequest(keys ...string) *Message {
	return &Message{
		MsgType: MsgTKVDelete,
		Keys:    keys,
	}
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVGet,
		Ok:      ok,
		Value:   value,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewHasRequest creates a new Has request
func NewHasRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVHas,
		Key:     key,
	}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVHas,
		Ok:      ok,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewMGetRequest creates a new MGet request
func NewMGetRequest(keys []string) *Message {
	return &Message{
		MsgType: MsgTKVMGet,
		Keys:    keys,
	}
}

// NewMGetResponse creates a new MGet response. Missing values (nil) are flagged in Found,
// so every serializer can tell them apart from empty values.
func NewMGetResponse(values [][]byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVMGet,
	}
	if err != nil {
		msg.Err = err.Error()
		return msg
	}
	msg.Values = make([][]byte, len(values))
	msg.Found = make([]bool, len(values))
	for i, v := range values {
		if v != nil {
			msg.Values[i] = v
			msg.Found[i] = true
		} else {
			msg.Values[i] = []byte{}
		}
	}
	return msg
}

// NewMSetRequest creates a new MSet request
func NewMSetRequest(keys []string, values [][]byte) *Message {
	return &Message{
		MsgType: MsgTKVMSet,
		Keys:    keys,
		Values:  values,
	}
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{
		MsgType: MsgTKVInfo,
	}
}

// NewInfoResponse creates a new Info response carrying the encoded database info
func NewInfoResponse(info []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVInfo,
		Meta:    info,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewAckResponse creates the response of a write operation (Set, SetE, SetEIfUnset, Delete, MSet)
func NewAckResponse(msgType MessageType, err error) *Message {
	msg := &Message{
		MsgType: msgType,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:       "success",
	MsgTError:         "error",
	MsgTKVSet:         "set",
	MsgTKVSetE:        "setE",
	MsgTKVSetEIfUnset: "setEIfUnset",
	MsgTKVDelete:      "delete",
	MsgTKVGet:         "get",
	MsgTKVHas:         "has",
	MsgTKVMGet:        "mget",
	MsgTKVMSet:        "mset",
	MsgTKVInfo:        "info",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVSet         // Set a key-value pair
	MsgTKVSetE        // Set a key-value pair with a ttl
	MsgTKVSetEIfUnset // Set a key-value pair with a ttl if not already set
	MsgTKVDelete      // Delete key-value pairs
	MsgTKVGet         // Get a value by key
	MsgTKVHas         // Check if a key exists
	MsgTKVMGet        // Get many values
	MsgTKVMSet        // Set many key-value pairs
	MsgTKVInfo        // Get information about the database of a shard
)
