// Package lstore implements a local, single-node key-value store based on the
// store.IStore interface. It is a thin wrapper around any db.KVDB implementation
// with automatic write index management.
//
// Implementation Details:
//
//   - Write Index Management: The store maintains an atomic counter that increments
//     with each write operation. Batch writes (MSet, multi key Delete) take one index
//     per key. When opened on a persistent engine the counter starts at the engine's
//     last write index.
//
//   - TTLs: relative TTLs are turned into absolute deadlines right before the write
//     reaches the engine.
//
//   - Feature Detection: Before executing operations, the store checks if the underlying
//     db.KVDB implementation supports the requested feature. Unsupported operations return
//     store.RetCUnsupportedOperation.
//
//   - Snapshots: the store implements store.ISnapshotter by delegating to the engine's
//     Save and Load.
//
// Usage Example:
//
//	s, err := lstore.NewLocalStore(func() (db.KVDB, error) {
//		return maple.NewMapleDB(nil), nil
//	})
//
//	// Store a session with a 5-minute ttl
//	err = s.SetE("sess:123", sessionData, 5*time.Minute)
//
//	// Retrieve the value
//	value, exists, err := s.Get("sess:123")
//
// All operations are thread-safe as long as the engine is.
package lstore
