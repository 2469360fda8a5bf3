package serializer

import (
	"fmt"

	"github.com/ValentinKolb/dDoc/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message.
	// All fields of msg are overwritten, fields missing in b are reset to their zero value.
	Deserialize(b []byte, msg *common.Message) error
	// Name returns the name the serializer is selected by
	Name() string
}

// New returns the serializer with the given name (json, gob, binary)
func New(name string) (IRPCSerializer, error) {
	switch name {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %q (expected one of: json, gob, binary)", name)
	}
}
