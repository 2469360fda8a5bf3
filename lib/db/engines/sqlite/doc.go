// Package sqlite implements db.KVDB on a SQLite database using github.com/mattn/go-sqlite3.
//
// All entries live in one table kv(key, value, delete_at, idx). Stale write detection
// is done in SQL: the upsert only applies when the incoming write index is not lower
// than the stored one. Expired rows are filtered on read and removed by a background
// sweep. Save and Load use the snapshot format shared with the maple engine.
//
// With an empty Path the database is held in memory; the pool is limited to a single
// connection so that memory database stays alive for the lifetime of the engine.
package sqlite
