package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func newBackend(t *testing.T) store.IStore {
	t.Helper()
	s, err := lstore.NewLocalStore(func() (db.KVDB, error) {
		return maple.NewMapleDB(nil), nil
	})
	require.NoError(t, err)
	return s
}

// sequence returns an id generator yielding prefix1, prefix2, ...
func sequence(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, n.Add(1))
	}
}

func newStore(t *testing.T, backend store.IStore, opts ...Option) *Store {
	t.Helper()
	s, err := New(backend, "users", append([]Option{WithIDGenerator(sequence("u"))}, opts...)...)
	require.NoError(t, err)
	return s
}

func rawIndex(t *testing.T, backend store.IStore, s *Store) string {
	t.Helper()
	data, ok, err := backend.Get(s.IndexKey())
	require.NoError(t, err)
	require.True(t, ok, "index must exist")
	return string(data)
}

func decode(t *testing.T, data []byte) Document {
	t.Helper()
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

// faultyStore fails every write to keys for which fail returns true
type faultyStore struct {
	store.IStore
	fail func(key string) bool
	err  error
}

func (f *faultyStore) Set(key string, value []byte) error {
	if f.fail(key) {
		return f.err
	}
	return f.IStore.Set(key, value)
}

func (f *faultyStore) Delete(keys ...string) error {
	for _, k := range keys {
		if f.fail(k) {
			return f.err
		}
	}
	return f.IStore.Delete(keys...)
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

func TestNew(t *testing.T) {
	t.Run("validates arguments", func(t *testing.T) {
		_, err := New(nil, "users")
		assert.Error(t, err)

		_, err = New(newBackend(t), "")
		assert.Error(t, err)
	})

	t.Run("creates empty index", func(t *testing.T) {
		backend := newBackend(t)
		s := newStore(t, backend)
		assert.Equal(t, "users_$dbindex", s.IndexKey())
		assert.Equal(t, "id", s.IDProperty())
		assert.Equal(t, "users", s.Namespace())
		assert.JSONEq(t, `[]`, rawIndex(t, backend, s))
	})

	t.Run("keeps existing index", func(t *testing.T) {
		backend := newBackend(t)
		existing := `[{"model":"user","keys":["users_1"]}]`
		require.NoError(t, backend.Set("users_$dbindex", []byte(existing)))

		s := newStore(t, backend)
		assert.JSONEq(t, existing, rawIndex(t, backend, s))
	})

	t.Run("custom id property", func(t *testing.T) {
		s := newStore(t, newBackend(t), WithIDProperty("_id"))
		doc, err := s.Post(Document{"name": "Ann"}, "user")
		require.NoError(t, err)
		assert.Equal(t, "u1", doc["_id"])
		assert.NotContains(t, doc, "id")
	})

	t.Run("default id generator", func(t *testing.T) {
		s, err := New(newBackend(t), "users")
		require.NoError(t, err)
		doc, err := s.Post(Document{}, "user")
		require.NoError(t, err)
		assert.Len(t, doc["id"], 36, "expected a uuid")
	})
}

// --------------------------------------------------------------------------
// Document operations
// --------------------------------------------------------------------------

func TestPostPutGetExample(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend)

	params := Document{"name": "Ann"}
	posted, err := s.Post(params, "user")
	require.NoError(t, err)
	assert.Equal(t, "u1", params["id"], "post writes the id into params")
	assert.Equal(t, Document{"name": "Ann", "id": "u1"}, posted)

	got, err := s.Get(Document{"id": "u1"}, "user")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"name":"Ann","id":"u1"}`, string(got[0]))

	put, err := s.Put(Document{"id": "u1", "age": 30}, "user")
	require.NoError(t, err)
	assert.Equal(t, Document{"name": "Ann", "id": "u1", "age": 30}, put)

	got, err = s.Get(Document{"id": "u1"}, "user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ann","id":"u1","age":30}`, string(got[0]))

	assert.JSONEq(t, `[{"model":"user","keys":["users_u1"]}]`, rawIndex(t, backend, s))
}

func TestPostNil(t *testing.T) {
	s := newStore(t, newBackend(t))
	_, err := s.Post(nil, "user")
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestPutRequiresID(t *testing.T) {
	s := newStore(t, newBackend(t))

	tests := []struct {
		name   string
		params Document
	}{
		{"missing", Document{"name": "Ann"}},
		{"empty", Document{"id": ""}},
		{"not a string", Document{"id": 42}},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Put(tt.params, "user")
			assert.ErrorIs(t, err, ErrMissingID)
		})
	}
}

func TestPutMergeIsShallow(t *testing.T) {
	s := newStore(t, newBackend(t))

	_, err := s.Set("1", Document{"name": "Ann", "address": Document{"city": "Ulm", "zip": "89073"}}, "user")
	require.NoError(t, err)

	doc, err := s.Put(Document{"id": "1", "address": Document{"city": "Berlin"}}, "user")
	require.NoError(t, err)

	assert.Equal(t, "Ann", doc["name"])
	assert.Equal(t, Document{"city": "Berlin"}, doc["address"], "nested objects are replaced, not merged")
}

func TestSetIsIdempotentInIndex(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend)

	for i := 0; i < 3; i++ {
		_, err := s.Set("1", Document{"n": i}, "user")
		require.NoError(t, err)
	}

	keys, err := s.Keys("user")
	require.NoError(t, err)
	assert.Equal(t, []string{"users_1"}, keys)
}

func TestSetOnNewModelKeepsOtherModels(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend)

	_, err := s.Set("1", Document{}, "user")
	require.NoError(t, err)
	_, err = s.Set("2", Document{}, "group")
	require.NoError(t, err)
	_, err = s.Set("3", Document{}, "user")
	require.NoError(t, err)

	idx, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, IndexRecord{
		{Model: "user", Keys: []string{"users_1", "users_3"}},
		{Model: "group", Keys: []string{"users_2"}},
	}, idx)
}

func TestSetIndexedButMissingDocument(t *testing.T) {
	backend := newBackend(t)
	require.NoError(t, backend.Set("users_$dbindex", []byte(`[{"model":"user","keys":["users_1"]}]`)))
	s := newStore(t, backend)

	doc, err := s.Set("1", Document{"name": "Ann"}, "user")
	require.NoError(t, err)
	assert.Equal(t, Document{"name": "Ann"}, doc)
}

func TestSetWithCorruptDocument(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend)

	_, err := s.Set("1", Document{"name": "Ann"}, "user")
	require.NoError(t, err)
	require.NoError(t, backend.Set("users_1", []byte("not json")))

	_, err = s.Set("1", Document{"age": 1}, "user")
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestGetAll(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend)

	t.Run("unknown model", func(t *testing.T) {
		values, err := s.GetAll("nobody")
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	for i := 1; i <= 3; i++ {
		_, err := s.Post(Document{"n": i}, "user")
		require.NoError(t, err)
	}
	_, err := s.Post(Document{"n": 99}, "group")
	require.NoError(t, err)

	t.Run("index order", func(t *testing.T) {
		values, err := s.Get(Document{}, "user")
		require.NoError(t, err)
		require.Len(t, values, 3)
		for i, v := range values {
			assert.Equal(t, float64(i+1), decode(t, v)["n"])
		}
	})

	t.Run("missing values yield nil", func(t *testing.T) {
		// raw delete behind the store's back
		require.NoError(t, backend.Delete("users_u2"))

		values, err := s.GetAll("user")
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.NotNil(t, values[0])
		assert.Nil(t, values[1])
		assert.NotNil(t, values[2])
	})

	t.Run("nil params", func(t *testing.T) {
		values, err := s.Get(nil, "group")
		require.NoError(t, err)
		require.Len(t, values, 1)
	})
}

func TestGetByKey(t *testing.T) {
	s := newStore(t, newBackend(t))

	_, err := s.GetByKey("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(Document{"id": 5}, "user")
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestMGet(t *testing.T) {
	s := newStore(t, newBackend(t))

	_, err := s.Set("a", Document{"v": "a"}, "user")
	require.NoError(t, err)
	_, err = s.Set("b", Document{"v": "b"}, "group")
	require.NoError(t, err)

	values, err := s.MGet([]string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "b", decode(t, values[0])["v"])
	assert.Nil(t, values[1])
	assert.Equal(t, "a", decode(t, values[2])["v"])

	values, err = s.MGet(nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestRemove(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend)

	_, err := s.Post(Document{"name": "Ann"}, "user")
	require.NoError(t, err)
	_, err = s.Post(Document{"name": "Bob"}, "user")
	require.NoError(t, err)

	require.NoError(t, s.Delete(Document{"id": "u1"}, "user"))

	values, err := s.GetAll("user")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "Bob", decode(t, values[0])["name"])

	has, err := backend.Has("users_u1")
	require.NoError(t, err)
	assert.False(t, has)

	t.Run("second remove is not found", func(t *testing.T) {
		err := s.Remove("u1", "user")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrInvalidPairs)

		var derr *Error
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, 404, derr.StatusCode)
	})

	t.Run("unindexed key is still deleted", func(t *testing.T) {
		require.NoError(t, backend.Set("users_stale", []byte(`{}`)))

		err := s.Remove("stale", "user")
		assert.ErrorIs(t, err, ErrNotFound)

		has, err := backend.Has("users_stale")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("unindexed model is not found and still deleted", func(t *testing.T) {
		require.NoError(t, backend.Set("users_x", []byte(`{}`)))

		err := s.Remove("x", "never-used")
		assert.ErrorIs(t, err, ErrNotFound)

		has, err := backend.Has("users_x")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("delete requires id", func(t *testing.T) {
		assert.ErrorIs(t, s.Delete(Document{}, "user"), ErrMissingID)
	})

	t.Run("entry is kept", func(t *testing.T) {
		require.NoError(t, s.Remove("u2", "user"))
		assert.JSONEq(t, `[{"model":"user","keys":[]}]`, rawIndex(t, backend, s))
	})
}

func TestMSet(t *testing.T) {
	t.Run("invalid pairs", func(t *testing.T) {
		s := newStore(t, newBackend(t))

		tests := []struct {
			name  string
			pairs []any
		}{
			{"empty", nil},
			{"odd", []any{"1", `{}`, "2"}},
			{"id not a string", []any{1, `{}`}},
			{"empty id", []any{"", `{}`}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.ErrorIs(t, s.MSet(tt.pairs, "user"), ErrInvalidPairs)
			})
		}

		keys, err := s.Keys("user")
		require.NoError(t, err)
		assert.Empty(t, keys, "invalid input must not touch the index")
	})

	t.Run("writes and indexes", func(t *testing.T) {
		backend := newBackend(t)
		s := newStore(t, backend)

		_, err := s.Set("1", Document{"name": "Ann", "age": 30}, "user")
		require.NoError(t, err)

		err = s.MSet([]any{
			"1", Document{"name": "Ann"},
			"2", `{"name":"Bob"}`,
			"3", json.RawMessage(`{"name":"Cid"}`),
			"2", []byte(`{"name":"Bob2"}`),
		}, "user")
		require.NoError(t, err)

		keys, err := s.Keys("user")
		require.NoError(t, err)
		assert.Equal(t, []string{"users_1", "users_2", "users_3"}, keys, "duplicates collapse")

		values, err := s.GetAll("user")
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.JSONEq(t, `{"name":"Ann"}`, string(values[0]), "mset overwrites without merging")
		assert.JSONEq(t, `{"name":"Bob2"}`, string(values[1]), "last pair wins")
		assert.JSONEq(t, `{"name":"Cid"}`, string(values[2]))
	})

	t.Run("creates model entry", func(t *testing.T) {
		backend := newBackend(t)
		s := newStore(t, backend)

		require.NoError(t, s.MSet([]any{"a", `{}`, "a", `{}`}, "tag"))
		assert.JSONEq(t, `[{"model":"tag","keys":["users_a"]}]`, rawIndex(t, backend, s))
	})
}

func TestFlushModel(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend)

	_, err := s.Set("1", Document{}, "user")
	require.NoError(t, err)
	_, err = s.Set("2", Document{}, "user")
	require.NoError(t, err)
	_, err = s.Set("3", Document{}, "group")
	require.NoError(t, err)

	require.NoError(t, s.FlushModel("user"))

	values, err := s.GetAll("user")
	require.NoError(t, err)
	assert.Empty(t, values)

	for _, key := range []string{"users_1", "users_2"} {
		has, err := backend.Has(key)
		require.NoError(t, err)
		assert.False(t, has, key)
	}

	values, err = s.GetAll("group")
	require.NoError(t, err)
	assert.Len(t, values, 1, "other models are unaffected")

	assert.JSONEq(t, `[{"model":"user","keys":[]},{"model":"group","keys":["users_3"]}]`, rawIndex(t, backend, s))

	require.NoError(t, s.FlushModel("never-used"))
}

func TestFlushAll(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend)

	_, err := s.Set("1", Document{}, "user")
	require.NoError(t, err)
	_, err = s.Set("2", Document{}, "group")
	require.NoError(t, err)
	require.NoError(t, backend.Set("other_1", []byte(`{}`)))

	require.NoError(t, s.FlushAll())

	assert.JSONEq(t, `[]`, rawIndex(t, backend, s))
	for _, model := range []string{"user", "group"} {
		values, err := s.GetAll(model)
		require.NoError(t, err)
		assert.Empty(t, values)
	}
	for _, key := range []string{"users_1", "users_2"} {
		has, err := backend.Has(key)
		require.NoError(t, err)
		assert.False(t, has, key)
	}

	has, err := backend.Has("other_1")
	require.NoError(t, err)
	assert.True(t, has, "keys of other namespaces stay")
}

func TestDuplicateModelEntries(t *testing.T) {
	backend := newBackend(t)
	require.NoError(t, backend.Set("users_$dbindex",
		[]byte(`[{"model":"user","keys":["users_1"]},{"model":"user","keys":["users_2"]}]`)))
	s := newStore(t, backend)

	_, err := s.Set("3", Document{}, "user")
	require.NoError(t, err)

	idx, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"users_1", "users_3"}, idx[0].Keys, "first entry wins")
	assert.Equal(t, []string{"users_2"}, idx[1].Keys, "second entry is orphaned")
}

func TestNotImplemented(t *testing.T) {
	s := newStore(t, newBackend(t))

	_, err := s.Length("user")
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = s.Query(Document{"name": "Ann"}, "user")
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = s.Command(Document{}, "user")
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestBackendErrorsPropagate(t *testing.T) {
	injected := errors.New("backend down")

	t.Run("index write", func(t *testing.T) {
		backend := &faultyStore{IStore: newBackend(t), err: injected}
		backend.fail = func(string) bool { return false }
		s := newStore(t, backend)

		backend.fail = func(key string) bool { return key == s.IndexKey() }
		_, err := s.Post(Document{}, "user")
		assert.ErrorIs(t, err, injected)
	})

	t.Run("document write", func(t *testing.T) {
		backend := &faultyStore{IStore: newBackend(t), err: injected}
		backend.fail = func(key string) bool { return key == "users_1" }
		s := newStore(t, backend)

		_, err := s.Set("1", Document{}, "user")
		assert.ErrorIs(t, err, injected)
	})

	t.Run("delete", func(t *testing.T) {
		backend := &faultyStore{IStore: newBackend(t), err: injected}
		backend.fail = func(string) bool { return false }
		s := newStore(t, backend)
		for _, id := range []string{"1", "2"} {
			_, err := s.Set(id, Document{}, "user")
			require.NoError(t, err)
		}

		backend.fail = func(key string) bool { return key == "users_1" || key == "users_2" }
		assert.ErrorIs(t, s.Remove("1", "user"), injected)
		assert.ErrorIs(t, s.FlushAll(), injected)
	})
}

// --------------------------------------------------------------------------
// Concurrency
// --------------------------------------------------------------------------

func postConcurrently(t *testing.T, stores []*Store, perStore int) {
	t.Helper()
	var wg sync.WaitGroup
	for _, s := range stores {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(s *Store) {
				defer wg.Done()
				if _, err := s.Post(Document{"n": 1}, "user"); err != nil {
					t.Errorf("post failed: %v", err)
				}
			}(s)
		}
	}
	wg.Wait()
}

func TestConcurrentPostsDefaultGuard(t *testing.T) {
	backend := newBackend(t)
	ids := sequence("c")
	a, err := New(backend, "users", WithIDGenerator(ids))
	require.NoError(t, err)
	b, err := New(backend, "users", WithIDGenerator(ids))
	require.NoError(t, err)

	postConcurrently(t, []*Store{a, b}, 50)

	keys, err := a.Keys("user")
	require.NoError(t, err)
	assert.Len(t, keys, 100, "no index update may get lost")
}

func TestConcurrentPostsDistributedGuard(t *testing.T) {
	backend := newBackend(t)
	ids := sequence("d")
	opts := []Option{WithIDGenerator(ids), WithDistributedGuard(time.Second, 10*time.Second)}
	a, err := New(backend, "users", opts...)
	require.NoError(t, err)
	b, err := New(backend, "users", opts...)
	require.NoError(t, err)

	postConcurrently(t, []*Store{a, b}, 20)

	keys, err := a.Keys("user")
	require.NoError(t, err)
	assert.Len(t, keys, 40, "no index update may get lost")

	has, err := backend.Has("users_$dbindex$lock")
	require.NoError(t, err)
	assert.False(t, has, "the lock is released after every operation")
}

func TestConcurrentPostsWithoutGuard(t *testing.T) {
	backend := newBackend(t)
	s := newStore(t, backend, WithoutGuard())

	// index updates may get lost here, only the absence of errors is checked
	postConcurrently(t, []*Store{s}, 20)

	keys, err := s.Keys("user")
	require.NoError(t, err)
	assert.NotEmpty(t, keys)
	assert.LessOrEqual(t, len(keys), 20)
}

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	unlock, err := g.Lock("k")
	require.NoError(t, err)

	locked := make(chan struct{})
	go func() {
		u, _ := g.Lock("k")
		close(locked)
		u()
	}()

	select {
	case <-locked:
		t.Fatal("second Lock returned while the first was held")
	case <-time.After(20 * time.Millisecond):
	}

	// other keys are independent
	u2, err := g.Lock("other")
	require.NoError(t, err)
	u2()

	unlock()
	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("second Lock did not return after unlock")
	}
}
