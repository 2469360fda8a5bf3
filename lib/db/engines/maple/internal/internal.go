package internal

import (
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with metadata
type Entry struct {
	Value    []byte // Stored data
	DeleteAt int64  // Deletion deadline in unix nanoseconds (0 = never)
	Index    uint64 // Write index when this entry was created/updated
}

// IsDeleted returns whether the entry is logically deleted at the given wall clock time
func (e Entry) IsDeleted(now int64) bool {
	return e.DeleteAt != 0 && now >= e.DeleteAt
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry]
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key string, seed uint64, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(util.HashString(key, seed)) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
