// Package maple implements a sharded in-memory key-value database (KVDB).
// It provides a complete implementation of the db.KVDB interface with a focus on
// thread safety and low overhead for the small, frequently rewritten values a
// document index produces.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages shards,
//     runs the garbage collector and maintains a monotonically increasing write index.
//     The write index is supplied by the caller (lstore counts writes, dstore uses the
//     raft log index), mapleImpl only makes sure it never goes backwards.
//
//   - Shard: A partition of the key space backed by an xsync.MapOf. Keys are assigned to
//     shards with a seeded FNV-1a hash so hot keys (like a namespace index) do not all
//     land in the same partition as their documents.
//
//   - Entry: The stored value plus its deletion deadline and write index. The write
//     index enables stale write detection: a write carrying an older index than the
//     stored entry is ignored.
//
// Deadlines and Garbage Collection:
//
//	Entries written with SetE or SetEIfUnset carry an absolute deadline. Reads check the
//	deadline on every access, so an expired entry is never returned. A background
//	goroutine sweeps all shards every GCInterval and physically removes entries whose
//	deadline has passed, re-checking each candidate atomically so a concurrent rewrite
//	is never lost.
//
// Persistence Format:
//
//	Save writes the engine independent snapshot format of util.WriteSnapshot, so a
//	snapshot taken from maple can be loaded into the sqlite engine and vice versa.
//	Expired entries are skipped.
//
// Thread Safety:
//
//	All read and write operations are safe for concurrent use. Save may run
//	concurrently with writes (fuzzy snapshot). Load is not thread-safe.
package maple
