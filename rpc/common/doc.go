// Package common provides the data structures shared by the rpc packages.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. The same struct is
//     used for requests and responses; which fields are set depends on the
//     MessageType. Factory functions create the requests and responses of every
//     store operation.
//
//   - MessageType: Enumeration of all supported operations (set, setE, setEIfUnset,
//     delete, get, has, mget, mset, info) plus the success and error types.
//
//   - ServerConfig: Configuration of a server node, including the shards it serves,
//     the storage engine, RAFT parameters and the listener. Provides utilities for
//     converting to Dragonboat configurations.
//
//   - ClientConfig: Configuration for clients, controlling endpoints, timeouts,
//     retries and socket options.
//
//   - Logger: A logger.ILogger implementation installed as Dragonboat's logger
//     factory, so raft and ddoc logs share one format.
package common
