// Package rpc provides the remote procedure call layer of ddoc. It connects
// document stores running in client processes with the key-value shards served
// by a ddoc server.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, configuration structures and logging.
//
//   - transport: Network communication with pluggable implementations
//     (TCP, Unix sockets, HTTP) and a registry to pick one by name.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: An RPC implementation of store.IStore, so a document store can run
//     on a remote shard exactly as on a local one.
//
//   - server: The RPC server hosting local and RAFT replicated shards, including
//     the adapter that maps messages onto store operations.
package rpc
