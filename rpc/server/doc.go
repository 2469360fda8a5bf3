// Package server implements the RPC server of ddoc. It exposes shards of key-value
// stores over a transport, the document store and the session store run on the
// client side on top of these shards.
//
// The package focuses on:
//   - Server-side RPC request handling for all store.IStore operations
//   - Adapter pattern to decouple application logic from RPC mechanisms
//   - Flexible shard configuration with support for local and distributed stores
//   - Persistence of local shards (sqlite engine or zstd compressed snapshots)
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a store.IStore.
//
//   - NewIStoreServerAdapter: Factory function creating an adapter for key-value
//     store operations, translating RPC requests to store.IStore method calls.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalIStore},
//	  },
//	  Engine:        common.EngineMaple,
//	  DataDir:       "data",
//	  Snapshots:     true,
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// The server supports two types of shards, which can be mixed within a single server:
//
//   - ShardTypeLocalIStore: A local store implementation, suitable for single-node deployments
//     or development environments. With Snapshots enabled the shard is restored from
//     <DataDir>/shard-<id>.snap.zst on start and saved there on shutdown.
//
//   - ShardTypeRemoteIStore: A distributed store implementation using Raft consensus,
//     providing strong consistency across multiple nodes. When using this type,
//     RAFT configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID, and ClusterMembers) must be properly configured.
//
// Every handled message is counted per shard and message type in the default
// VictoriaMetrics set. The counters are served on GET /metrics of the http transport
// and of the optional MetricsEndpoint listener.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Each request is processed independently.
//	Serve must be called only once.
package server
