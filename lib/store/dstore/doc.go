// Package dstore implements a replicated key-value store using the Dragonboat RAFT
// consensus library. It provides a strongly consistent implementation of the
// store.IStore interface that can operate across multiple nodes.
//
// Architecture:
//
//   - Store Client: Implements store.IStore. It turns operations into commands, proposes
//     them with SyncPropose and maps the state machine result to a store.Error.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine that owns the db.KVDB and
//     applies commands to it. The raft log index is used as the write index, so every
//     replica ends up with identical entries.
//
//   - Protocol: Command and Query in the internal package.
//
// Write Operations:
//
//	Set, SetE, SetEIfUnset, Delete and MSet are proposed as one command each. Multi key
//	deletes and MSet are applied atomically because they are a single log entry. TTLs are
//	converted to absolute deadlines before proposing.
//
// Read Operations:
//
//	Get, Has and MGet use SyncRead (linearizable). GetDBInfo uses StaleRead.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried after a short delay,
//	up to 5 attempts. Every attempt is bounded by the configured timeout.
//
// Snapshotting and Recovery:
//
//	Snapshots are fuzzy and delegate to the engine's Save and Load. On restart a replica
//	loads the latest snapshot and then replays the remaining log.
//
// Example:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//
//	dbFactory := func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil }
//	err = nh.StartConcurrentReplica(members, false, dstore.CreateStateMaschineFactory(dbFactory), shardConfig)
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
package dstore
