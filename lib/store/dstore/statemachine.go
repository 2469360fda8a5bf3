package dstore

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMaschineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory.
// Dragonboat gives the factory no way to report errors, a failing dbFactory therefore panics.
func CreateStateMaschineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database, err := dbFactory()
		if err != nil {
			log.Panicf("failed to create database for shard %d replica %d: %v", shardID, replicaID, err)
		}
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  database,
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {

	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
		}
		val, ok := fsm.database.Get(q.Key)
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTHas:
		if !fsm.database.SupportsFeature(db.FeatureHas) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
		}
		return fsm.database.Has(q.Key), nil
	case internal.QueryTMGet:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "MGet operation is not supported")
		}
		values := make([][]byte, len(q.Keys))
		for i, key := range q.Keys {
			if val, ok := fsm.database.Get(key); ok {
				values[i] = val
			}
		}
		return values, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the KVDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		entries[idx].Result = fsm.apply(e)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single raft log entry
func (fsm *KVStateMachine) apply(e sm.Entry) sm.Result {
	if len(e.Cmd) == 0 {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
	}

	cmd := internal.Command{}
	if err := cmd.Deserialize(e.Cmd); err != nil {
		return sm.Result{
			Value: uint64(store.RetCInternalError),
			Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
		}
	}

	// Check if the db supports the operation
	feat, err := cmd.Type.ToDBFeature()
	if err != nil {
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}
	if !fsm.database.SupportsFeature(feat) {
		return sm.Result{
			Value: uint64(store.RetCUnsupportedOperation),
			Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
		}
	}

	if cmd.Type != internal.CommandTDelete && len(cmd.Values) != len(cmd.Keys) {
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("%s: got %d keys but %d values", cmd.Type, len(cmd.Keys), len(cmd.Values))),
		}
	}

	// every key of a command shares the raft index of the entry
	for i, key := range cmd.Keys {
		var err error
		switch cmd.Type {
		case internal.CommandTSet:
			err = fsm.database.Set(key, cmd.Values[i], e.Index)
		case internal.CommandTSetE:
			err = fsm.database.SetE(key, cmd.Values[i], e.Index, cmd.DeleteAt)
		case internal.CommandTSetIfUnset:
			err = fsm.database.SetEIfUnset(key, cmd.Values[i], e.Index, cmd.DeleteAt)
		case internal.CommandTDelete:
			err = fsm.database.Delete(key, e.Index)
		}
		if err != nil {
			// this replica now differs from the ones that applied the entry
			log.Errorf("shard %d replica %d failed to apply entry %d: %v", fsm.shardID, fsm.replicaID, e.Index, err)
			return sm.Result{
				Value: uint64(store.RetCInternalError),
				Data:  []byte(fmt.Sprintf("%s: key %d of %d failed: %v", cmd.Type, i+1, len(cmd.Keys), err)),
			}
		}
	}

	return sm.Result{
		Value: uint64(store.RetCSuccess),
		Data:  []byte(fmt.Sprintf("%s: %d keys", cmd.Type, len(cmd.Keys))),
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the database content with the snapshot
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
