package docstore

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/sqlite"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// holdWriteLock takes the write lock of the sqlite file at path from a second connection
// until the returned function is called.
func holdWriteLock(t *testing.T, path string) (release func()) {
	t.Helper()
	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	_, err = conn.Exec("BEGIN EXCLUSIVE")
	require.NoError(t, err)

	released := false
	release = func() {
		if released {
			return
		}
		released = true
		_, _ = conn.Exec("ROLLBACK")
		_ = conn.Close()
	}
	t.Cleanup(release)
	return release
}

func TestPostFailsWhenBackendRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.sqlite")
	database, err := sqlite.NewSQLiteDB(&sqlite.DBOptions{Path: path, BusyTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	backend, err := lstore.NewLocalStore(func() (db.KVDB, error) { return database, nil })
	require.NoError(t, err)
	s := newStore(t, backend)

	release := holdWriteLock(t, path)
	_, err = s.Post(Document{"name": "Ann"}, "user")
	require.Error(t, err, "post must fail when the database rejects the write")

	_, err = s.Set("2", Document{"name": "Bob"}, "user")
	require.Error(t, err)
	release()

	_, err = s.GetByKey("u1")
	assert.ErrorIs(t, err, ErrNotFound)
	keys, err := s.Keys("user")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// the store recovers once the lock is gone
	doc, err := s.Post(Document{"name": "Cid"}, "user")
	require.NoError(t, err)
	data, err := s.GetByKey(doc["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Cid", decode(t, data)["name"])
}
