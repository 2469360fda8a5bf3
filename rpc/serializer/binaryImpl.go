package serializer

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: MsgType (1 byte), flags (2 bytes), then every field whose flag is set in
// the order of the flags. Strings and byte slices are prefixed with their uint32 length,
// lists with their uint32 element count. All integers are big endian.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey    uint16 = 1 << 0
	hasKeys   uint16 = 1 << 1
	hasTTL    uint16 = 1 << 2
	hasValue  uint16 = 1 << 3
	hasValues uint16 = 1 << 4
	hasOk     uint16 = 1 << 5
	hasFound  uint16 = 1 << 6
	hasErr    uint16 = 1 << 7
	hasMeta   uint16 = 1 << 8
)

const headerSize = 3

// nilChunk marks a nil element in Values
const nilChunk = ^uint32(0)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	w := &binaryWriter{buf: make([]byte, headerSize, b.sizeBytes(msg))}
	w.buf[0] = byte(msg.MsgType)

	var flags uint16

	if msg.Key != "" {
		flags |= hasKey
		w.chunk([]byte(msg.Key))
	}
	if msg.Keys != nil {
		flags |= hasKeys
		w.uint32(uint32(len(msg.Keys)))
		for _, k := range msg.Keys {
			w.chunk([]byte(k))
		}
	}
	if msg.TTL != 0 {
		flags |= hasTTL
		w.uint64(uint64(msg.TTL))
	}
	if msg.Value != nil {
		flags |= hasValue
		w.chunk(msg.Value)
	}
	if msg.Values != nil {
		flags |= hasValues
		w.uint32(uint32(len(msg.Values)))
		for _, v := range msg.Values {
			if v == nil {
				w.uint32(nilChunk)
				continue
			}
			w.chunk(v)
		}
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Found != nil {
		flags |= hasFound
		w.uint32(uint32(len(msg.Found)))
		for _, f := range msg.Found {
			if f {
				w.buf = append(w.buf, 1)
			} else {
				w.buf = append(w.buf, 0)
			}
		}
	}
	if msg.Err != "" {
		flags |= hasErr
		w.chunk([]byte(msg.Err))
	}
	if msg.Meta != nil {
		flags |= hasMeta
		w.chunk(msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(w.buf[1:3], flags)

	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	r := &binaryReader{data: data, pos: headerSize}

	if flags&hasKey != 0 {
		key, err := r.chunk("key")
		if err != nil {
			return err
		}
		msg.Key = string(key)
	}

	if flags&hasKeys != 0 {
		n, err := r.count("keys")
		if err != nil {
			return err
		}
		msg.Keys = make([]string, n)
		for i := range msg.Keys {
			key, err := r.chunk(fmt.Sprintf("key %d", i))
			if err != nil {
				return err
			}
			msg.Keys[i] = string(key)
		}
	}

	if flags&hasTTL != 0 {
		ttl, err := r.uint64("ttl")
		if err != nil {
			return err
		}
		msg.TTL = time.Duration(ttl)
	}

	if flags&hasValue != 0 {
		value, err := r.chunk("value")
		if err != nil {
			return err
		}
		msg.Value = value
	}

	if flags&hasValues != 0 {
		n, err := r.count("values")
		if err != nil {
			return err
		}
		msg.Values = make([][]byte, n)
		for i := range msg.Values {
			value, err := r.chunk(fmt.Sprintf("value %d", i))
			if err != nil {
				return err
			}
			msg.Values[i] = value
		}
	}

	msg.Ok = flags&hasOk != 0

	if flags&hasFound != 0 {
		n, err := r.count("found")
		if err != nil {
			return err
		}
		if r.pos+n > len(data) {
			return fmt.Errorf("data too short for found flags")
		}
		msg.Found = make([]bool, n)
		for i := range msg.Found {
			msg.Found[i] = data[r.pos+i] != 0
		}
		r.pos += n
	}

	if flags&hasErr != 0 {
		e, err := r.chunk("error")
		if err != nil {
			return err
		}
		msg.Err = string(e)
	}

	if flags&hasMeta != 0 {
		meta, err := r.chunk("meta")
		if err != nil {
			return err
		}
		msg.Meta = meta
	}

	if r.pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-r.pos)
	}
	return nil
}

func (b binarySerializerImpl) Name() string { return "binary" }

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Keys != nil {
		size += 4
		for _, k := range msg.Keys {
			size += 4 + len(k)
		}
	}
	if msg.TTL != 0 {
		size += 8
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Values != nil {
		size += 4
		for _, v := range msg.Values {
			size += 4 + len(v)
		}
	}
	if msg.Found != nil {
		size += 4 + len(msg.Found)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

type binaryWriter struct {
	buf []byte
}

func (w *binaryWriter) uint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *binaryWriter) uint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// chunk writes a length prefixed byte slice
func (w *binaryWriter) chunk(data []byte) {
	w.uint32(uint32(len(data)))
	w.buf = append(w.buf, data...)
}

type binaryReader struct {
	data []byte
	pos  int
}

func (r *binaryReader) uint32(field string) (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s length", field)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *binaryReader) uint64(field string) (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// count reads an element count and rejects counts that can not fit into the rest of the data
func (r *binaryReader) count(field string) (int, error) {
	n, err := r.uint32(field)
	if err != nil {
		return 0, err
	}
	if int(n) > len(r.data)-r.pos {
		return 0, fmt.Errorf("data too short for %d %s", n, field)
	}
	return int(n), nil
}

// chunk reads a length prefixed byte slice. The result is a copy, so the
// caller may reuse data. A nilChunk length yields nil.
func (r *binaryReader) chunk(field string) ([]byte, error) {
	n, err := r.uint32(field)
	if err != nil {
		return nil, err
	}
	if n == nilChunk {
		return nil, nil
	}
	if r.pos+int(n) > len(r.data) {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}
