// Package db provides a standardized interface for key-value database implementations.
// It defines the KVDB interface that the stores of this module (lstore, dstore) are
// built on, so the engine holding the bytes can be swapped without touching the
// document layer.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for basic operations (Set, Get, Has, Delete),
//     time-based operations (SetE, SetEIfUnset), metadata retrieval (GetInfo)
//     and persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. This allows clients to
//     discover supported operations at runtime.
//
//   - Implementation Identifiers: "maple" (sharded in-memory engine) and "sqlite"
//     (persistent engine backed by a single SQLite file).
//
// Note on Time:
//   - Write Index: All write operations carry a write-index used as a logical timestamp.
//     A write with a lower index than the stored entry is ignored, which keeps replicas
//     that re-apply a raft log consistent. The write-index only ever grows.
//   - Deadlines: Entries written with SetE/SetEIfUnset carry an absolute wall clock
//     deadline (unix nanoseconds). The deadline is computed by the caller, not by the
//     engine, so every replica applying the same command stores the same deadline.
//   - External Consistency: Get and Has never return an entry whose deadline has
//     passed, even if the garbage collector has not removed it yet.
//
// Related Packages:
//
//   - engines/maple: sharded in-memory engine with background garbage collection
//   - engines/sqlite: persistent engine using github.com/mattn/go-sqlite3
//   - testing: RunKVDBTests and RunKVDBBenchmarks for engine implementations
//   - util: seed and hash helpers
package db
