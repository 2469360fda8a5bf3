// Package internal defines the wire format between the dstore client and the raft
// state machine.
//
//   - Command: write operations (Set, SetE, SetIfUnset, Delete) proposed to the raft log.
//     A command may carry many keys, so one document store MSet or FlushModel is a single
//     log entry and is applied atomically on every replica.
//
//   - Query: read operations (Get, Has, MGet, GetDBInfo). Queries are executed locally on
//     the state machine and are never serialized.
//
// Command Format (all integers big endian):
//
//	- 1 byte: command type
//	- 8 bytes: deleteAt (int64, unix nanoseconds, 0 = never)
//	- 4 bytes: number of keys
//	- per key: 4 bytes key length + key, 4 bytes value length + value
//
// The deadline is computed by the proposer, so every replica stores the same deadline
// no matter when it applies the entry.
package internal
