package dstore

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// readOnlyDB accepts reads but fails every Set
type readOnlyDB struct {
	db.KVDB
}

func (readOnlyDB) Set(string, []byte, uint64) error {
	return errors.New("database is read only")
}

func entry(index uint64, cmd internal.Command) sm.Entry {
	return sm.Entry{Index: index, Cmd: cmd.Serialize()}
}

func TestUpdateReportsFailedWrites(t *testing.T) {
	database := readOnlyDB{KVDB: maple.NewMapleDB(nil)}
	defer database.Close()
	fsm := &KVStateMachine{shardID: 1, replicaID: 1, database: database}

	entries, err := fsm.Update([]sm.Entry{
		entry(1, internal.Command{
			Type:   internal.CommandTSet,
			Keys:   []string{"users_1"},
			Values: [][]byte{[]byte(`{}`)},
		}),
		entry(2, internal.Command{
			Type: internal.CommandTDelete,
			Keys: []string{"users_1"},
		}),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if got := store.RetCode(entries[0].Result.Value); got != store.RetCInternalError {
		t.Errorf("failed Set: expected result %s, got %s (%s)", store.RetCInternalError, got, entries[0].Result.Data)
	}
	if got := store.RetCode(entries[1].Result.Value); got != store.RetCSuccess {
		t.Errorf("Delete: expected result %s, got %s (%s)", store.RetCSuccess, got, entries[1].Result.Data)
	}
}

func TestUpdateAppliesWrites(t *testing.T) {
	database := maple.NewMapleDB(nil)
	defer database.Close()
	fsm := &KVStateMachine{shardID: 1, replicaID: 1, database: database}

	entries, err := fsm.Update([]sm.Entry{
		entry(1, internal.Command{
			Type:   internal.CommandTSet,
			Keys:   []string{"users_1", "users_2"},
			Values: [][]byte{[]byte(`{"id":"1"}`), []byte(`{"id":"2"}`)},
		}),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := store.RetCode(entries[0].Result.Value); got != store.RetCSuccess {
		t.Fatalf("expected result %s, got %s (%s)", store.RetCSuccess, got, entries[0].Result.Data)
	}

	for _, key := range []string{"users_1", "users_2"} {
		if _, ok := database.Get(key); !ok {
			t.Errorf("expected %q to be stored", key)
		}
	}
}
