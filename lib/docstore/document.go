package docstore

import (
	"encoding/json"
	"maps"
)

// Document is a schemaless JSON object. Values are whatever encoding/json produces:
// string, float64, bool, nil, map[string]any and []any.
type Document = map[string]any

// merge returns a new document with all fields of prior overwritten by the fields of val.
// The merge is shallow: nested objects of val replace those of prior as a whole.
func merge(prior, val Document) Document {
	out := make(Document, len(prior)+len(val))
	maps.Copy(out, prior)
	maps.Copy(out, val)
	return out
}

// decodeDocument parses a stored document. A stored JSON null yields a nil document.
func decodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newError(ErrInvalidDocument, "stored value is not a JSON object: %v", err)
	}
	return doc, nil
}

// encodeDocument serializes a document. encoding/json writes the keys sorted.
func encodeDocument(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, newError(ErrInvalidDocument, "failed to encode document: %v", err)
	}
	return data, nil
}

// encodeValue converts an MSet value into the stored bytes.
// Raw JSON and strings are stored as they are, everything else is JSON encoded.
func encodeValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case json.RawMessage:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, newError(ErrInvalidDocument, "failed to encode value: %v", err)
		}
		return data, nil
	}
}

// idOf extracts the id property of params as a non-empty string
func idOf(params Document, idProp string) (string, error) {
	raw, ok := params[idProp]
	if !ok || raw == nil {
		return "", newError(ErrMissingID, "missing id property %q", idProp)
	}
	id, ok := raw.(string)
	if !ok {
		return "", newError(ErrMissingID, "id property %q must be a string, got %T", idProp, raw)
	}
	if id == "" {
		return "", newError(ErrMissingID, "id property %q is empty", idProp)
	}
	return id, nil
}

// hasID reports whether params carries the id property at all
func hasID(params Document, idProp string) bool {
	_, ok := params[idProp]
	return ok
}
