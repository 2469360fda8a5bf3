package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/dDoc/rpc/common"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// Every message carries its own type description, which makes gob the largest format.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob does not transmit zero values, so stale fields would survive
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}

func (g gobSerializerImpl) Name() string { return "gob" }
