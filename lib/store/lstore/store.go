package lstore

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/ValentinKolb/dDoc/lib/store"
	"io"
	"sync/atomic"
	"time"
)

type storeImpl struct {
	db    db.KVDB
	index atomic.Uint64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// The returned store also implements store.ISnapshotter and io.Closer.
func NewLocalStore(factory store.DBFactory) (store.IStore, error) {
	database, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	s := &storeImpl{
		db: database,
	}
	// continue counting where a persistent engine left off
	s.index.Store(database.WriteIdx())
	return s, nil
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return store.NewError(store.RetCUnsupportedOperation, "Set operation is not supported")
	}
	return writeError(s.db.Set(key, value, s.incAndGetIndex()))
}

func (s *storeImpl) SetE(key string, value []byte, ttl time.Duration) error {
	if !s.db.SupportsFeature(db.FeatureSetE) {
		return store.NewError(store.RetCUnsupportedOperation, "SetE operation is not supported")
	}
	return writeError(s.db.SetE(key, value, s.incAndGetIndex(), util.DeadlineFromTTL(ttl)))
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, ttl time.Duration) error {
	if !s.db.SupportsFeature(db.FeatureSetEIfUnset) {
		return store.NewError(store.RetCUnsupportedOperation, "SetEIfUnset operation is not supported")
	}
	return writeError(s.db.SetEIfUnset(key, value, s.incAndGetIndex(), util.DeadlineFromTTL(ttl)))
}

func (s *storeImpl) Delete(keys ...string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return store.NewError(store.RetCUnsupportedOperation, "Delete operation is not supported")
	}
	for _, key := range keys {
		if err := s.db.Delete(key, s.incAndGetIndex()); err != nil {
			return writeError(err)
		}
	}
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	return s.db.Has(key), nil
}

func (s *storeImpl) MGet(keys []string) ([][]byte, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "MGet operation is not supported")
	}
	values := make([][]byte, len(keys))
	for i, key := range keys {
		if val, ok := s.db.Get(key); ok {
			values[i] = val
		}
	}
	return values, nil
}

func (s *storeImpl) MSet(keys []string, values [][]byte) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return store.NewError(store.RetCUnsupportedOperation, "MSet operation is not supported")
	}
	if err := store.ValidatePairs(keys, values); err != nil {
		return err
	}
	for i, key := range keys {
		if err := s.db.Set(key, values[i], s.incAndGetIndex()); err != nil {
			return writeError(err)
		}
	}
	return nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

// --------------------------------------------------------------------------
// Snapshot Methods (docu see store.ISnapshotter)
// --------------------------------------------------------------------------

func (s *storeImpl) Snapshot(w io.Writer) error {
	if !s.db.SupportsFeature(db.FeatureSave) {
		return store.NewError(store.RetCUnsupportedOperation, "Save operation is not supported")
	}
	return s.db.Save(w)
}

func (s *storeImpl) Restore(r io.Reader) error {
	if !s.db.SupportsFeature(db.FeatureLoad) {
		return store.NewError(store.RetCUnsupportedOperation, "Load operation is not supported")
	}
	if err := s.db.Load(r); err != nil {
		return err
	}
	// new writes must win over restored entries
	for {
		curr := s.index.Load()
		next := max(curr, s.db.WriteIdx())
		if s.index.CompareAndSwap(curr, next) {
			return nil
		}
	}
}

// writeError turns a failed engine write into a store error, nil stays nil
func writeError(err error) error {
	if err == nil {
		return nil
	}
	return store.NewError(store.RetCInternalError, err.Error())
}

// Close closes the underlying database
func (s *storeImpl) Close() error {
	return s.db.Close()
}
