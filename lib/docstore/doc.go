// Package docstore implements a document store on top of any store.IStore backend.
//
// Documents are JSON objects stored at <namespace>_<id>. Per namespace a single index
// record at <namespace>_$dbindex lists, per model, the keys of the documents that belong
// to it:
//
//	[{"model":"user","keys":["users_u1","users_u2"]},{"model":"group","keys":[]}]
//
// Every operation that changes membership runs one read-modify-write cycle on that record:
// load and parse the index, change it in memory, persist it, then touch the document keys.
// The cycles are serialized by a Guard:
//
//   - LocalGuard (default): one mutex per index key, shared by every Store of the process.
//   - DistributedGuard: a lock in the backend (<namespace>_$dbindex$lock) acquired through
//     lockmgr, for deployments where several processes share one backend.
//   - WithoutGuard: no serialization. Two concurrent writers of one model may overwrite
//     each other's index update and a key can get lost from the index.
//
// Put merges shallowly into the stored document, Post always writes a new document with a
// generated id (uuid v4 unless WithIDGenerator is used), MSet overwrites blindly.
// Remove always deletes the document from the backend and reports ErrNotFound afterwards
// if the key was not indexed. Index entries of a model are never removed, FlushModel and
// Remove only empty their key lists.
//
// Length, Query and Command are not supported and return ErrNotImplemented.
package docstore
