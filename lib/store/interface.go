package store

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() (db.KVDB, error)

// IStore is the generic interface for interacting with a key–value store.
// All write operations return only an error (nil on success),
// while read operations return the requested data along with an error (nil on success).
type IStore interface {
	// Set inserts or updates a key–value pair. Any ttl of a previous value is dropped.
	Set(key string, value []byte) (err error)
	// SetE inserts or updates a key–value pair that is removed after ttl.
	// A ttl <= 0 means the value never expires.
	SetE(key string, value []byte, ttl time.Duration) (err error)
	// SetEIfUnset inserts a key–value pair only if no live value exists for the key.
	// If the key already exists, the old value is not updated and no error is returned.
	SetEIfUnset(key string, value []byte, ttl time.Duration) (err error)
	// Delete removes the given keys. Missing keys are ignored.
	Delete(keys ...string) (err error)
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a live value exists for the key.
	Has(key string) (loaded bool, err error)
	// MGet returns the values for all keys in the same order. Missing keys yield a nil element.
	MGet(keys []string) (values [][]byte, err error)
	// MSet writes all key–value pairs. keys and values must have the same length.
	MSet(keys []string, values [][]byte) (err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// ISnapshotter is implemented by stores that can persist their complete state.
type ISnapshotter interface {
	// Snapshot writes the state of the store to w.
	Snapshot(w io.Writer) error
	// Restore replaces the state of the store with the data read from r.
	Restore(r io.Reader) error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}

// ValidatePairs checks that keys and values can be zipped into pairs
func ValidatePairs(keys []string, values [][]byte) error {
	if len(keys) != len(values) {
		return NewError(RetCInvalidOperation, fmt.Sprintf("got %d keys but %d values", len(keys), len(values)))
	}
	return nil
}
