package maple

import (
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior
const (
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a concurrent database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for the shard hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp

	// garbage collection
	gcInterval time.Duration
	gcMu       sync.Mutex
	gcStop     chan struct{}
	gcDone     chan struct{}
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = number of CPUs)
	GCInterval time.Duration // Time between GC runs (0 = use default)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),
		GCInterval: defaultGCInterval,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	newDB := &mapleImpl{
		numShards:  opts.NumShards,
		seed:       util.GenerateSeed(),
		shards:     newShards(opts.NumShards),
		gcInterval: opts.GCInterval,
	}

	// start garbage collection
	newDB.startGC()

	return newDB
}

// newShards creates n empty shards
func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shard returns the shard responsible for a key
func (maple *mapleImpl) shard(key string) *internal.Shard {
	return internal.GetShard(key, maple.seed, maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key, value, and writeIndex.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, writeIndex uint64) error {
	return maple.compute(key, value, writeIndex, 0, func(new, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return new, false
	})
}

// SetE stores a value for a key with a deletion deadline (unix nanoseconds, 0 = never).
// If the key already exists, the old value and old deadline are overwritten.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetE(key string, value []byte, writeIndex uint64, deleteAt int64) error {
	return maple.compute(key, value, writeIndex, deleteAt, func(new, _ internal.Entry, _ bool) (internal.Entry, bool) {
		return new, false
	})
}

// SetEIfUnset inserts an entry only if no live entry exists for the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetEIfUnset(key string, value []byte, writeIndex uint64, deleteAt int64) error {
	return maple.compute(key, value, writeIndex, deleteAt, func(new, old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded {
			return old, false
		}
		return new, false
	})
}

// compute is a helper method for shared implementation between Set, SetE, SetEIfUnset and Delete.
// It handles the actual storage of the key-value pair and ignoring stale writes.
//
// The provided function receives the new entry, the old entry and whether old is a live entry.
// It returns the entry to store and whether the key should be removed instead.
//
// An in-memory write can not fail, so the returned error is always nil.
//
// Thread-safety: the whole decision runs inside xsync's per-key Compute.
func (maple *mapleImpl) compute(key string, value []byte, writeIndex uint64, deleteAt int64, fn func(new, old internal.Entry, loaded bool) (entry internal.Entry, delete bool)) error {

	// update the current index
	maple.SetWriteIdx(writeIndex)

	// Copy value to prevent memory corruption
	var valueCopy []byte
	if value != nil {
		valueCopy = make([]byte, len(value))
		copy(valueCopy, value)
	}

	now := util.Now()

	maple.shard(key).Data.Compute(key, func(oldEntry internal.Entry, oldEntryExists bool) (internal.Entry, bool) {
		// stale writes are ignored
		if oldEntryExists && writeIndex < oldEntry.Index {
			return oldEntry, false
		}

		// an entry past its deadline is treated as if it did not exist
		loaded := oldEntryExists && !oldEntry.IsDeleted(now)

		entry, del := fn(internal.Entry{
			Value:    valueCopy,
			DeleteAt: deleteAt,
			Index:    writeIndex,
		}, oldEntry, loaded)

		if del {
			return oldEntry, true
		}
		return entry, false
	})
	return nil
}

// Delete removes an entry with the specified key. This change is immediate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, writeIndex uint64) error {
	return maple.compute(key, nil, writeIndex, 0, func(_, old internal.Entry, _ bool) (internal.Entry, bool) {
		return old, true
	})
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	e, ok := maple.shard(key).Data.Load(key)
	if !ok || e.IsDeleted(util.Now()) {
		return nil, false
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true
}

// Has checks if a live entry for the key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) bool {
	e, ok := maple.shard(key).Data.Load(key)
	return ok && !e.IsDeleted(util.Now())
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the background sweep goroutine
func (maple *mapleImpl) startGC() {
	maple.gcMu.Lock()
	defer maple.gcMu.Unlock()

	if maple.gcStop != nil {
		return
	}
	maple.gcStop = make(chan struct{})
	maple.gcDone = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(maple.gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				maple.sweep()
			}
		}
	}(maple.gcStop, maple.gcDone)
}

// stopGC stops the background sweep goroutine and waits for it to exit
func (maple *mapleImpl) stopGC() {
	maple.gcMu.Lock()
	defer maple.gcMu.Unlock()

	if maple.gcStop == nil {
		return
	}
	close(maple.gcStop)
	<-maple.gcDone
	maple.gcStop = nil
	maple.gcDone = nil
}

// sweep removes all entries whose deadline has passed
func (maple *mapleImpl) sweep() {
	now := util.Now()
	for _, shard := range maple.shards {
		var expired []string
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if e.IsDeleted(now) {
				expired = append(expired, key)
			}
			return true
		})

		// re-check inside Compute, the entry may have been rewritten since Range saw it
		for _, key := range expired {
			shard.Data.Compute(key, func(e internal.Entry, loaded bool) (internal.Entry, bool) {
				return e, !loaded || e.IsDeleted(now)
			})
		}
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a fuzzy snapshot of all live entries to w
//
// Thread-safety: This function is thread-safe, concurrent writes may or may not be included.
func (maple *mapleImpl) Save(w io.Writer) error {
	now := util.Now()
	var entries []util.SnapshotEntry
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if !e.IsDeleted(now) {
				entries = append(entries, util.SnapshotEntry{
					Key:      key,
					Value:    e.Value,
					DeleteAt: e.DeleteAt,
					Index:    e.Index,
				})
			}
			return true
		})
	}
	return util.WriteSnapshot(w, entries)
}

// Load replaces the database content with a snapshot read from r
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {

	// stop gc during load
	maple.stopGC()
	defer maple.startGC()

	shards := newShards(maple.numShards)
	var maxIndex uint64

	err := util.ReadSnapshot(r, func(e util.SnapshotEntry) error {
		if e.Index > maxIndex {
			maxIndex = e.Index
		}
		internal.GetShard(e.Key, maple.seed, shards).Data.Store(e.Key, internal.Entry{
			Value:    e.Value,
			DeleteAt: e.DeleteAt,
			Index:    e.Index,
		})
		return nil
	})
	if err != nil {
		return err
	}

	// swap in the loaded state only after the whole snapshot was read
	maple.shards = shards
	maple.currIndex.Store(0)
	maple.SetWriteIdx(maxIndex)

	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	now := util.Now()

	entries := 0
	sizeBytes := 0
	expiredBacklog := 0
	shardSizes := make([]int, len(maple.shards))

	for i, shard := range maple.shards {
		shardSizes[i] = shard.Data.Size()
		shard.Data.Range(func(key string, e internal.Entry) bool {
			if e.IsDeleted(now) {
				expiredBacklog++
				return true
			}
			entries++
			sizeBytes += len(key) + len(e.Value) + 16 // 8 bytes each for deleteAt and index
			return true
		})
	}

	meta := &struct {
		CurrentWriteIndex uint64          `json:"current_write_index"`
		ShardCount        int             `json:"shard_count"`
		ShardSizes        []int           `json:"shard_sizes"`
		Distribution      util.ShardStats `json:"distribution"`
		ExpiredBacklog    int             `json:"expired_backlog"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		ShardSizes:        shardSizes,
		Distribution:      util.NewShardStats(shardSizes),
		ExpiredBacklog:    expiredBacklog,
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Entries:   entries,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetE, db.FeatureSetEIfUnset,
			db.FeatureGet, db.FeatureHas, db.FeatureDelete,
			db.FeatureSave, db.FeatureLoad,
			db.FeatureGarbageCollect,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureSetE |
		db.FeatureSetEIfUnset |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureGarbageCollect
	return supportedFeatures&feature == feature
}

// Close stops the garbage collector
func (maple *mapleImpl) Close() error {
	maple.stopGC()
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}
