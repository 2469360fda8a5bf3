package docstore

import (
	"fmt"
	"net/http"
)

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error is returned by the document store for failures that belong to the document
// layer. The status code follows HTTP semantics so handlers can pass it through.
// Errors of the backend are wrapped with fmt.Errorf and never converted into an *Error.
type Error struct {
	StatusCode int
	Message    string

	kind *Error // sentinel this error was derived from
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Is reports whether target is the sentinel e was derived from,
// so errors.Is(err, ErrNotFound) matches every not found error of this package.
func (e *Error) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// newError derives an error with a specific message from a sentinel
func newError(kind *Error, format string, args ...any) *Error {
	return &Error{StatusCode: kind.StatusCode, Message: fmt.Sprintf(format, args...), kind: kind}
}

// --------------------------------------------------------------------------
// Sentinels
// --------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a key is not part of a model's index or a document is missing.
	ErrNotFound = &Error{StatusCode: http.StatusNotFound, Message: "model key does not exist"}
	// ErrNotImplemented is returned by Length, Query and Command.
	ErrNotImplemented = &Error{StatusCode: http.StatusNotImplemented, Message: "not implemented"}
	// ErrInvalidPairs is returned by MSet for an empty or odd pair sequence or non string ids.
	ErrInvalidPairs = &Error{StatusCode: http.StatusBadRequest, Message: "invalid key/value pairs"}
	// ErrMissingID is returned when the id property is absent or not a non-empty string.
	ErrMissingID = &Error{StatusCode: http.StatusBadRequest, Message: "missing id property"}
	// ErrInvalidDocument is returned when a document can not be encoded or a stored value is not a JSON object.
	ErrInvalidDocument = &Error{StatusCode: http.StatusBadRequest, Message: "invalid document"}
)
