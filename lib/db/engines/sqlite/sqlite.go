package sqlite

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	_ "github.com/mattn/go-sqlite3"
)

var log = logger.GetLogger("sqlite")

const (
	defaultGCInterval  = time.Second
	defaultBusyTimeout = 5 * time.Second
)

// --------------------------------------------------------------------------
// SQL statements
// --------------------------------------------------------------------------

const (
	schema = `
CREATE TABLE IF NOT EXISTS kv (
	key       TEXT PRIMARY KEY,
	value     BLOB NOT NULL,
	delete_at INTEGER NOT NULL DEFAULT 0,
	idx       INTEGER NOT NULL DEFAULT 0
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS kv_delete_at ON kv(delete_at) WHERE delete_at != 0;`

	// stale writes (lower idx than stored) are filtered by the WHERE of the upsert
	stmtSet = `
INSERT INTO kv(key, value, delete_at, idx) VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, delete_at = excluded.delete_at, idx = excluded.idx
WHERE excluded.idx >= kv.idx`

	stmtSetIfUnset = `
INSERT INTO kv(key, value, delete_at, idx) VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, delete_at = excluded.delete_at, idx = excluded.idx
WHERE excluded.idx >= kv.idx AND kv.delete_at != 0 AND kv.delete_at <= ?`

	stmtDelete = `DELETE FROM kv WHERE key = ? AND idx <= ?`
	stmtGet    = `SELECT value FROM kv WHERE key = ? AND (delete_at = 0 OR delete_at > ?)`
	stmtHas    = `SELECT 1 FROM kv WHERE key = ? AND (delete_at = 0 OR delete_at > ?)`
	stmtSweep  = `DELETE FROM kv WHERE delete_at != 0 AND delete_at <= ?`
)

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// sqliteImpl implements db.KVDB on top of a single SQLite database
type sqliteImpl struct {
	conn      *sql.DB
	path      string
	currIndex atomic.Uint64

	gcInterval time.Duration
	gcStop     chan struct{}
	gcDone     chan struct{}
	closeOnce  sync.Once
}

// DBOptions configures the sqlite engine
type DBOptions struct {
	Path        string        // Database file, empty for an in-memory database
	GCInterval  time.Duration // Time between sweeps of expired rows (0 = use default)
	BusyTimeout time.Duration // How long a write waits for a lock held by another connection (0 = use default)
}

// NewSQLiteDB opens (or creates) a SQLite backed KVDB
func NewSQLiteDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{}
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaultBusyTimeout
	}

	dsn := ":memory:"
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", opts.Path, opts.BusyTimeout.Milliseconds())
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// a single connection keeps the in-memory database alive and serializes writers
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &sqliteImpl{
		conn:       conn,
		path:       opts.Path,
		gcInterval: opts.GCInterval,
		gcStop:     make(chan struct{}),
		gcDone:     make(chan struct{}),
	}

	var maxIdx int64
	if err := conn.QueryRow(`SELECT COALESCE(MAX(idx), 0) FROM kv`).Scan(&maxIdx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read write index: %w", err)
	}
	s.currIndex.Store(uint64(maxIdx))

	go s.runGC()

	return s, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (s *sqliteImpl) Set(key string, value []byte, writeIndex uint64) error {
	return s.SetE(key, value, writeIndex, 0)
}

func (s *sqliteImpl) SetE(key string, value []byte, writeIndex uint64, deleteAt int64) error {
	s.SetWriteIdx(writeIndex)
	if _, err := s.conn.Exec(stmtSet, key, nonNil(value), deleteAt, int64(writeIndex)); err != nil {
		return fmt.Errorf("sqlite: set %q failed: %w", key, err)
	}
	return nil
}

func (s *sqliteImpl) SetEIfUnset(key string, value []byte, writeIndex uint64, deleteAt int64) error {
	s.SetWriteIdx(writeIndex)
	if _, err := s.conn.Exec(stmtSetIfUnset, key, nonNil(value), deleteAt, int64(writeIndex), util.Now()); err != nil {
		return fmt.Errorf("sqlite: set-if-unset %q failed: %w", key, err)
	}
	return nil
}

func (s *sqliteImpl) Delete(key string, writeIndex uint64) error {
	s.SetWriteIdx(writeIndex)
	if _, err := s.conn.Exec(stmtDelete, key, int64(writeIndex)); err != nil {
		return fmt.Errorf("sqlite: delete %q failed: %w", key, err)
	}
	return nil
}

func (s *sqliteImpl) Get(key string) ([]byte, bool) {
	var value []byte
	err := s.conn.QueryRow(stmtGet, key, util.Now()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		log.Errorf("get %q failed: %v", key, err)
		return nil, false
	}
	return value, true
}

func (s *sqliteImpl) Has(key string) bool {
	var one int
	err := s.conn.QueryRow(stmtHas, key, util.Now()).Scan(&one)
	if err != nil && err != sql.ErrNoRows {
		log.Errorf("has %q failed: %v", key, err)
	}
	return err == nil
}

func (s *sqliteImpl) Save(w io.Writer) error {
	rows, err := s.conn.Query(`SELECT key, value, delete_at, idx FROM kv WHERE delete_at = 0 OR delete_at > ? ORDER BY key`, util.Now())
	if err != nil {
		return err
	}
	defer rows.Close()

	var entries []util.SnapshotEntry
	for rows.Next() {
		var e util.SnapshotEntry
		var idx int64
		if err := rows.Scan(&e.Key, &e.Value, &e.DeleteAt, &idx); err != nil {
			return err
		}
		e.Index = uint64(idx)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return util.WriteSnapshot(w, entries)
}

func (s *sqliteImpl) Load(r io.Reader) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM kv`); err != nil {
		return err
	}

	insert, err := tx.Prepare(`INSERT INTO kv(key, value, delete_at, idx) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insert.Close()

	var maxIndex uint64
	err = util.ReadSnapshot(r, func(e util.SnapshotEntry) error {
		if e.Index > maxIndex {
			maxIndex = e.Index
		}
		_, err := insert.Exec(e.Key, nonNil(e.Value), e.DeleteAt, int64(e.Index))
		return err
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.currIndex.Store(0)
	s.SetWriteIdx(maxIndex)
	return nil
}

func (s *sqliteImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureSetE |
		db.FeatureSetEIfUnset |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureGarbageCollect
	return supportedFeatures&feature == feature
}

func (s *sqliteImpl) GetInfo() db.DatabaseInfo {
	var entries, size int
	err := s.conn.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(key) + LENGTH(value) + 16), 0) FROM kv WHERE delete_at = 0 OR delete_at > ?`,
		util.Now(),
	).Scan(&entries, &size)
	if err != nil {
		log.Errorf("failed to read database info: %v", err)
	}

	path := s.path
	if path == "" {
		path = ":memory:"
	}

	return db.DatabaseInfo{
		SizeBytes: size,
		Entries:   entries,
		DbType:    db.ImplSQLite,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetE, db.FeatureSetEIfUnset,
			db.FeatureGet, db.FeatureHas, db.FeatureDelete,
			db.FeatureSave, db.FeatureLoad,
			db.FeatureGarbageCollect,
		},
		Metadata: &struct {
			CurrentWriteIndex uint64 `json:"current_write_index"`
			Path              string `json:"path"`
		}{
			CurrentWriteIndex: s.currIndex.Load(),
			Path:              path,
		},
	}
}

func (s *sqliteImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := s.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if s.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

func (s *sqliteImpl) WriteIdx() uint64 {
	return s.currIndex.Load()
}

func (s *sqliteImpl) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		<-s.gcDone
		err = s.conn.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runGC periodically deletes expired rows until Close is called
func (s *sqliteImpl) runGC() {
	defer close(s.gcDone)
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			if _, err := s.conn.Exec(stmtSweep, util.Now()); err != nil {
				log.Warningf("sweep failed: %v", err)
			}
		}
	}
}

// nonNil maps nil to an empty slice, the value column is NOT NULL
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
