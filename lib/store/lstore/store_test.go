package lstore

import (
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/store"
)

var errDiskFull = errors.New("disk full")

// failingDB rejects every write while failing is set
type failingDB struct {
	db.KVDB
	failing bool
}

func (f *failingDB) Set(key string, value []byte, writeIndex uint64) error {
	if f.failing {
		return errDiskFull
	}
	return f.KVDB.Set(key, value, writeIndex)
}

func (f *failingDB) SetE(key string, value []byte, writeIndex uint64, deleteAt int64) error {
	if f.failing {
		return errDiskFull
	}
	return f.KVDB.SetE(key, value, writeIndex, deleteAt)
}

func (f *failingDB) SetEIfUnset(key string, value []byte, writeIndex uint64, deleteAt int64) error {
	if f.failing {
		return errDiskFull
	}
	return f.KVDB.SetEIfUnset(key, value, writeIndex, deleteAt)
}

func (f *failingDB) Delete(key string, writeIndex uint64) error {
	if f.failing {
		return errDiskFull
	}
	return f.KVDB.Delete(key, writeIndex)
}

func TestWriteErrorsPropagate(t *testing.T) {
	engine := &failingDB{KVDB: maple.NewMapleDB(nil)}
	s, err := NewLocalStore(func() (db.KVDB, error) { return engine, nil })
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	defer s.(*storeImpl).Close()

	if err := s.Set("users_1", []byte(`{}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	engine.failing = true

	writes := []struct {
		name  string
		write func() error
	}{
		{"Set", func() error { return s.Set("users_2", []byte(`{}`)) }},
		{"SetE", func() error { return s.SetE("sess:a", []byte(`{}`), time.Minute) }},
		{"SetEIfUnset", func() error { return s.SetEIfUnset("users_$dbindex", []byte(`[]`), 0) }},
		{"Delete", func() error { return s.Delete("users_1") }},
		{"MSet", func() error {
			return s.MSet([]string{"users_3", "users_4"}, [][]byte{[]byte(`{}`), []byte(`{}`)})
		}},
	}
	for _, w := range writes {
		err := w.write()
		var storeErr *store.Error
		if !errors.As(err, &storeErr) {
			t.Errorf("%s: expected a *store.Error, got %v", w.name, err)
			continue
		}
		if storeErr.Code != store.RetCInternalError {
			t.Errorf("%s: expected code %s, got %s", w.name, store.RetCInternalError, storeErr.Code)
		}
	}

	engine.failing = false

	has, err := s.Has("users_1")
	if err != nil || !has {
		t.Errorf("users_1 must survive the failed delete (has=%v, err=%v)", has, err)
	}
	values, err := s.MGet([]string{"users_2", "users_3"})
	if err != nil {
		t.Fatalf("MGet failed: %v", err)
	}
	for i, v := range values {
		if v != nil {
			t.Errorf("value %d was written although the write failed: %q", i, v)
		}
	}
}
