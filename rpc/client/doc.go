// Package client implements the RPC client of ddoc. It provides an implementation
// of the store.IStore interface that communicates with a ddoc server via RPC, so the
// document store and the session store can run against a remote shard.
//
// The package focuses on:
//   - Transparent RPC access to a store shard
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewRPCStore: Factory function that creates a client implementing the store.IStore
//     interface. This client forwards all operations to remote servers via the configured
//     transport layer. Errors reported by the server come back as *store.Error.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	backend, _ := client.NewRPCStore(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	docs, _ := docstore.New(backend, "users")
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - MGet and MSet move many documents in one round trip, the document store uses them
//     for GetAll and MSet.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
