// Package store provides the key-value contract the document store is built on.
// It is an abstraction layer over the lower-level db.KVDB engines that adds write
// index management, relative TTLs, batch operations and standardized error reporting.
//
// Key Components:
//
//   - IStore Interface: Get, Set, SetE, SetEIfUnset, Delete (multi key), Has, MGet, MSet
//     and GetDBInfo. The document store, the lock manager and the session store only
//     ever talk to this interface, so they run unchanged against a local store, a raft
//     replicated store or a remote server.
//
//   - ISnapshotter: optional interface of stores that can write and restore their
//     complete state (used by the server to persist local shards).
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     (RetCode) and descriptive messages.
//
//   - DBFactory: A function type that abstracts the creation of underlying db.KVDB
//     instances.
//
// Implementations:
//
//	- Local Store (lstore): directly uses a db.KVDB instance and counts the write index
//	  with an atomic counter. Suitable for single-node deployments.
//
//	- Distributed Store (dstore): built on the Dragonboat RAFT library. Every write is a
//	  proposal on a raft shard, reads are linearizable.
//
//	- Remote Store (rpc/client): speaks the rpc protocol to a ddoc server.
package store
