package docstore

import (
	"encoding/json"
	"fmt"
	"slices"
)

// --------------------------------------------------------------------------
// Index types
// --------------------------------------------------------------------------

// ModelIndexEntry lists the document keys owned by one model.
// Keys keep their insertion order and never contain duplicates.
type ModelIndexEntry struct {
	Model string   `json:"model"`
	Keys  []string `json:"keys"`
}

// IndexRecord is the persisted index of a namespace.
// It is stored as one JSON array under <namespace>_$dbindex.
type IndexRecord []ModelIndexEntry

// parseIndex decodes a stored index. A missing or empty value is an empty index.
func parseIndex(data []byte) (IndexRecord, error) {
	if len(data) == 0 {
		return IndexRecord{}, nil
	}
	var idx IndexRecord
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	if idx == nil {
		idx = IndexRecord{}
	}
	for i := range idx {
		if idx[i].Keys == nil {
			idx[i].Keys = []string{}
		}
	}
	return idx, nil
}

// encode serializes the index, an empty index is written as []
func (idx IndexRecord) encode() ([]byte, error) {
	if idx == nil {
		idx = IndexRecord{}
	}
	return json.Marshal(idx)
}

// find returns the position of the first entry for model or -1.
// Later entries for the same model are never consulted.
func (idx IndexRecord) find(model string) int {
	for i := range idx {
		if idx[i].Model == model {
			return i
		}
	}
	return -1
}

// duplicates returns the number of entries for model after the first one
func (idx IndexRecord) duplicates(model string) int {
	n := 0
	for i := range idx {
		if idx[i].Model == model {
			n++
		}
	}
	return max(n-1, 0)
}

// keys returns a copy of the key set of model, or nil if the model has no entry
func (idx IndexRecord) keys(model string) []string {
	i := idx.find(model)
	if i < 0 {
		return nil
	}
	return slices.Clone(idx[i].Keys)
}

// allKeys returns the keys of every entry in index order
func (idx IndexRecord) allKeys() []string {
	var all []string
	for _, e := range idx {
		all = append(all, e.Keys...)
	}
	return all
}

// --------------------------------------------------------------------------
// Entry mutations
// --------------------------------------------------------------------------

// contains reports whether key is a member of the entry
func (e *ModelIndexEntry) contains(key string) bool {
	return slices.Contains(e.Keys, key)
}

// union adds all keys that are not yet members, keeping their order.
// It returns whether the entry changed.
func (e *ModelIndexEntry) union(keys ...string) bool {
	changed := false
	for _, k := range keys {
		if !e.contains(k) {
			e.Keys = append(e.Keys, k)
			changed = true
		}
	}
	return changed
}

// remove deletes key from the entry and reports whether it was a member
func (e *ModelIndexEntry) remove(key string) bool {
	i := slices.Index(e.Keys, key)
	if i < 0 {
		return false
	}
	e.Keys = slices.Delete(e.Keys, i, i+1)
	return true
}

// newEntry creates an entry for model seeded with the deduplicated keys
func newEntry(model string, keys ...string) ModelIndexEntry {
	e := ModelIndexEntry{Model: model, Keys: []string{}}
	e.union(keys...)
	return e
}
