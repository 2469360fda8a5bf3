package internal

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTSet        CommandType = iota // Insert or update one or more entries.
	CommandTSetE                          // Insert or update entries with a deletion deadline.
	CommandTSetIfUnset                    // Insert entries that do not exist.
	CommandTDelete                        // Delete one or more entries.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTSetE:
		return "SetE"
	case CommandTSetIfUnset:
		return "SetIfUnset"
	case CommandTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTSet:
		return db.FeatureSet, nil
	case CommandTSetE:
		return db.FeatureSetE, nil
	case CommandTSetIfUnset:
		return db.FeatureSetEIfUnset, nil
	case CommandTDelete:
		return db.FeatureDelete, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// A command carries one or more keys; for write commands Values[i] belongs to Keys[i],
// for delete commands Values is empty.
type Command struct {
	Type     CommandType
	DeleteAt int64 // absolute deadline in unix nanoseconds, computed by the proposer
	Keys     []string
	Values   [][]byte
}

const headerSize = 1 + 8 + 4 // Type + DeleteAt + Count

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := headerSize
	for i, key := range command.Keys {
		size += 4 + len(key) + 4
		if i < len(command.Values) {
			size += len(command.Values[i])
		}
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for deleteAt,
// 4 bytes for the number of keys,
// per key: 4 bytes key length + key data, 4 bytes value length + value data.
// All integers are big endian.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], uint64(command.DeleteAt))
	binary.BigEndian.PutUint32(result[9:13], uint32(len(command.Keys)))

	pos := headerSize
	for i, key := range command.Keys {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(key)))
		pos += 4
		pos += copy(result[pos:], key)

		var value []byte
		if i < len(command.Values) {
			value = command.Values[i]
		}
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(value)))
		pos += 4
		pos += copy(result[pos:], value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.DeleteAt = int64(binary.BigEndian.Uint64(data[1:9]))
	count := int(binary.BigEndian.Uint32(data[9:13]))

	// every key needs at least 8 bytes of length prefixes
	if count > (len(data)-headerSize)/8 {
		return fmt.Errorf("data too short for %d keys", count)
	}

	command.Keys = make([]string, count)
	command.Values = make([][]byte, count)

	pos := headerSize
	for i := 0; i < count; i++ {
		key, next, err := readChunk(data, pos)
		if err != nil {
			return fmt.Errorf("key %d: %w", i, err)
		}
		command.Keys[i] = string(key)

		value, next, err := readChunk(data, next)
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
		if len(value) > 0 {
			command.Values[i] = make([]byte, len(value))
			copy(command.Values[i], value)
		}
		pos = next
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-pos)
	}
	return nil
}

// readChunk reads a length prefixed chunk starting at pos and returns it with the next position
func readChunk(data []byte, pos int) ([]byte, int, error) {
	if len(data) < pos+4 {
		return nil, 0, fmt.Errorf("data too short for length prefix")
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if len(data) < pos+n {
		return nil, 0, fmt.Errorf("data too short for chunk of length %d", n)
	}
	return data[pos : pos+n], pos + n, nil
}
