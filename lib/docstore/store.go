package docstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("docstore")

const (
	// DefaultIDProperty is the document field holding the id
	DefaultIDProperty = "id"

	indexSuffix = "$dbindex"
)

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

// Store is a document store on top of a key-value backend.
// Documents live at <namespace>_<id>, the index of all models at <namespace>_$dbindex.
// A Store is safe for concurrent use.
type Store struct {
	backend   store.IStore
	namespace string
	indexKey  string
	idProp    string
	newID     func() string
	guard     Guard
}

type config struct {
	idProp       string
	newID        func() string
	guard        Guard
	guardFactory func(store.IStore) Guard
}

// Option configures a Store
type Option func(*config)

// WithIDProperty sets the document field that holds the id (default "id")
func WithIDProperty(prop string) Option {
	return func(c *config) {
		if prop != "" {
			c.idProp = prop
		}
	}
}

// WithIDGenerator replaces the uuid v4 generator used by Post
func WithIDGenerator(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithGuard sets the guard serializing index updates
func WithGuard(g Guard) Option {
	return func(c *config) {
		if g != nil {
			c.guard = g
			c.guardFactory = nil
		}
	}
}

// WithDistributedGuard serializes index updates with a lock in the backend, so every
// process sharing the backend is covered. ttl bounds how long the lock may be held,
// timeout how long an operation waits for it.
func WithDistributedGuard(ttl, timeout time.Duration) Option {
	return func(c *config) {
		c.guard = nil
		c.guardFactory = func(backend store.IStore) Guard {
			return NewDistributedGuard(lockmgr.NewLockManager(backend), ttl, timeout)
		}
	}
}

// WithoutGuard disables serialization of index updates.
// Concurrent writes to one model may then drop keys from the index.
func WithoutGuard() Option {
	return WithGuard(noGuard{})
}

// New creates a document store for namespace and makes sure its index exists.
// By default index updates are serialized for all stores of this process.
func New(backend store.IStore, namespace string, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("docstore: backend is nil")
	}
	if namespace == "" {
		return nil, errors.New("docstore: namespace must not be empty")
	}

	cfg := &config{
		idProp: DefaultIDProperty,
		newID:  uuid.NewString,
		guard:  defaultGuard,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.guardFactory != nil {
		cfg.guard = cfg.guardFactory(backend)
	}

	s := &Store{
		backend:   backend,
		namespace: namespace,
		indexKey:  namespace + "_" + indexSuffix,
		idProp:    cfg.idProp,
		newID:     cfg.newID,
		guard:     cfg.guard,
	}

	// never overwrites an index another store already created
	if err := backend.SetEIfUnset(s.indexKey, []byte("[]"), 0); err != nil {
		return nil, fmt.Errorf("failed to initialize index %q: %w", s.indexKey, err)
	}

	log.Debugf("opened namespace %q (id property %q)", namespace, s.idProp)
	return s, nil
}

// Namespace returns the key prefix of the store
func (s *Store) Namespace() string { return s.namespace }

// IndexKey returns the backend key of the index record
func (s *Store) IndexKey() string { return s.indexKey }

// IDProperty returns the document field holding the id
func (s *Store) IDProperty() string { return s.idProp }

// Key returns the backend key of the document with the given id
func (s *Store) Key(id string) string { return s.namespace + "_" + id }

// --------------------------------------------------------------------------
// Read operations
// --------------------------------------------------------------------------

// Get returns the document addressed by the id property of params,
// or all documents of model if params carries no id.
func (s *Store) Get(params Document, model string) ([][]byte, error) {
	if !hasID(params, s.idProp) {
		return s.GetAll(model)
	}
	id, err := idOf(params, s.idProp)
	if err != nil {
		return nil, err
	}
	value, err := s.GetByKey(id)
	if err != nil {
		return nil, err
	}
	return [][]byte{value}, nil
}

// GetByKey returns the raw stored JSON of a document
func (s *Store) GetByKey(id string) (value []byte, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())

	key := s.Key(id)
	value, ok, err := s.backend.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	if !ok {
		return nil, newError(ErrNotFound, "document %q does not exist", key)
	}
	return value, nil
}

// GetAll returns the raw values of all documents of model in index order.
// Documents whose value is missing in the backend yield a nil element.
func (s *Store) GetAll(model string) (values [][]byte, err error) {
	defer func(start time.Time) { observe("get_all", start, err) }(time.Now())

	idx, err := s.loadIndex(model)
	if err != nil {
		return nil, err
	}
	keys := idx.keys(model)
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	values, err = s.backend.MGet(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents of model %q: %w", model, err)
	}
	return values, nil
}

// MGet returns the raw values of the documents with the given ids without consulting the index
func (s *Store) MGet(ids []string) (values [][]byte, err error) {
	defer func(start time.Time) { observe("mget", start, err) }(time.Now())

	if len(ids) == 0 {
		return [][]byte{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.Key(id)
	}
	values, err = s.backend.MGet(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return values, nil
}

// List returns the parsed index record of the namespace
func (s *Store) List() (IndexRecord, error) {
	return s.loadIndex("")
}

// Keys returns the document keys owned by model
func (s *Store) Keys(model string) ([]string, error) {
	idx, err := s.loadIndex(model)
	if err != nil {
		return nil, err
	}
	keys := idx.keys(model)
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// --------------------------------------------------------------------------
// Write operations
// --------------------------------------------------------------------------

// Post stores params as a new document of model under a freshly generated id.
// The id is written into params and the stored document is returned.
func (s *Store) Post(params Document, model string) (Document, error) {
	if params == nil {
		return nil, newError(ErrInvalidDocument, "can not post a nil document")
	}
	id := s.newID()
	params[s.idProp] = id
	return s.Set(id, params, model)
}

// Put merges params into the document addressed by its id property.
func (s *Store) Put(params Document, model string) (Document, error) {
	id, err := idOf(params, s.idProp)
	if err != nil {
		return nil, err
	}
	return s.Set(id, params, model)
}

// Set registers the document in the index of model and writes prior ∪ val,
// where prior is the stored document if the key was already indexed for model.
func (s *Store) Set(id string, val Document, model string) (doc Document, err error) {
	defer func(start time.Time) { observe("set", start, err) }(time.Now())

	key := s.Key(id)

	unlock, err := s.guard.Lock(s.indexKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prior, err := s.validateKey(key, model)
	if err != nil {
		return nil, err
	}

	doc = merge(prior, val)
	data, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := s.backend.Set(key, data); err != nil {
		return nil, fmt.Errorf("failed to write document %q: %w", key, err)
	}
	return doc, nil
}

// Delete removes the document addressed by the id property of params
func (s *Store) Delete(params Document, model string) error {
	id, err := idOf(params, s.idProp)
	if err != nil {
		return err
	}
	return s.Remove(id, model)
}

// Remove drops the document from the index of model and deletes it from the backend.
// The backend delete happens in every case, ErrNotFound is returned afterwards if the
// key was not indexed for model.
func (s *Store) Remove(id, model string) (err error) {
	defer func(start time.Time) { observe("remove", start, err) }(time.Now())

	key := s.Key(id)

	unlock, err := s.guard.Lock(s.indexKey)
	if err != nil {
		return err
	}
	defer unlock()

	idx, err := s.loadIndex(model)
	if err != nil {
		return err
	}

	pos := idx.find(model)
	removed := pos >= 0 && idx[pos].remove(key)
	if removed {
		if err := s.writeIndex(idx); err != nil {
			return err
		}
	}

	if err := s.backend.Delete(key); err != nil {
		return fmt.Errorf("failed to delete document %q: %w", key, err)
	}

	switch {
	case pos < 0:
		return newError(ErrNotFound, "model %q is not indexed", model)
	case !removed:
		return newError(ErrNotFound, "model key %q does not exist", key)
	}
	return nil
}

// MSet writes many documents of model at once. pairs alternates id and value:
// ids must be non-empty strings, values are stored as they are if they are []byte,
// json.RawMessage or string and JSON encoded otherwise. Existing documents are
// overwritten, not merged.
func (s *Store) MSet(pairs []any, model string) (err error) {
	defer func(start time.Time) { observe("mset", start, err) }(time.Now())

	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return newError(ErrInvalidPairs, "expected a positive even number of elements, got %d", len(pairs))
	}

	keys := make([]string, 0, len(pairs)/2)
	values := make([][]byte, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		id, ok := pairs[i].(string)
		if !ok || id == "" {
			return newError(ErrInvalidPairs, "element %d must be a non-empty id string, got %T", i, pairs[i])
		}
		data, err := encodeValue(pairs[i+1])
		if err != nil {
			return err
		}
		keys = append(keys, s.Key(id))
		values = append(values, data)
	}

	unlock, err := s.guard.Lock(s.indexKey)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.validateKeys(keys, model); err != nil {
		return err
	}

	if err := s.backend.MSet(keys, values); err != nil {
		return fmt.Errorf("failed to write documents of model %q: %w", model, err)
	}
	return nil
}

// FlushModel deletes every document of model. The (now empty) index entry is kept.
func (s *Store) FlushModel(model string) (err error) {
	defer func(start time.Time) { observe("flush_model", start, err) }(time.Now())

	unlock, err := s.guard.Lock(s.indexKey)
	if err != nil {
		return err
	}
	defer unlock()

	idx, err := s.loadIndex(model)
	if err != nil {
		return err
	}

	pos := idx.find(model)
	if pos < 0 {
		return nil
	}

	keys := idx[pos].Keys
	idx[pos].Keys = []string{}
	if err := s.writeIndex(idx); err != nil {
		return err
	}

	return s.deleteKeys(keys)
}

// FlushAll deletes every indexed document of the namespace and resets the index
func (s *Store) FlushAll() (err error) {
	defer func(start time.Time) { observe("flush_all", start, err) }(time.Now())

	unlock, err := s.guard.Lock(s.indexKey)
	if err != nil {
		return err
	}
	defer unlock()

	idx, err := s.loadIndex("")
	if err != nil {
		return err
	}

	keys := idx.allKeys()
	if err := s.writeIndex(IndexRecord{}); err != nil {
		return err
	}

	return s.deleteKeys(keys)
}

// --------------------------------------------------------------------------
// Unsupported operations
// --------------------------------------------------------------------------

// Length is not supported
func (s *Store) Length(model string) (int, error) {
	return 0, newError(ErrNotImplemented, "length not implemented")
}

// Query is not supported
func (s *Store) Query(params Document, model string) ([][]byte, error) {
	return nil, newError(ErrNotImplemented, "query not implemented")
}

// Command is not supported
func (s *Store) Command(params Document, model string) (any, error) {
	return nil, newError(ErrNotImplemented, "command not implemented")
}

// --------------------------------------------------------------------------
// Index maintenance
// --------------------------------------------------------------------------

// loadIndex reads and parses the index record.
// If model is set, duplicate entries for it are reported.
func (s *Store) loadIndex(model string) (IndexRecord, error) {
	data, _, err := s.backend.Get(s.indexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %q: %w", s.indexKey, err)
	}
	idx, err := parseIndex(data)
	if err != nil {
		return nil, err
	}
	if model != "" {
		if n := idx.duplicates(model); n > 0 {
			log.Warningf("index %q has %d orphaned entries for model %q", s.indexKey, n, model)
		}
	}
	return idx, nil
}

// writeIndex persists the whole index record
func (s *Store) writeIndex(idx IndexRecord) error {
	data, err := idx.encode()
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := s.backend.Set(s.indexKey, data); err != nil {
		return fmt.Errorf("failed to write index %q: %w", s.indexKey, err)
	}
	indexWrites.Inc()
	return nil
}

// validateKey makes sure key is indexed for model and returns the stored document
// if it already was (the base for merging), nil otherwise.
// The caller must hold the guard.
func (s *Store) validateKey(key, model string) (Document, error) {
	idx, err := s.loadIndex(model)
	if err != nil {
		return nil, err
	}

	pos := idx.find(model)
	switch {
	case pos < 0:
		idx = append(idx, newEntry(model, key))
	case idx[pos].contains(key):
		data, ok, err := s.backend.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to read document %q: %w", key, err)
		}
		if !ok {
			// indexed but the value is gone, write it as new
			log.Warningf("index %q lists %q but the document is missing", s.indexKey, key)
			return nil, nil
		}
		return decodeDocument(data)
	default:
		idx[pos].union(key)
	}

	return nil, s.writeIndex(idx)
}

// validateKeys makes sure all keys are indexed for model.
// The caller must hold the guard.
func (s *Store) validateKeys(keys []string, model string) error {
	idx, err := s.loadIndex(model)
	if err != nil {
		return err
	}

	pos := idx.find(model)
	if pos < 0 {
		idx = append(idx, newEntry(model, keys...))
	} else if !idx[pos].union(keys...) {
		// every key is already indexed
		return nil
	}

	return s.writeIndex(idx)
}

// deleteKeys removes documents from the backend
func (s *Store) deleteKeys(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.backend.Delete(keys...); err != nil {
		return fmt.Errorf("failed to delete %d documents: %w", len(keys), err)
	}
	return nil
}
