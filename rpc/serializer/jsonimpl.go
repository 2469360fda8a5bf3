package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/dDoc/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding.
// Byte slices are base64 encoded, message types are written by name.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// json.Unmarshal keeps fields that are absent in b
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}

func (j jsonSerializerImpl) Name() string { return "json" }
