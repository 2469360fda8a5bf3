// Package tcp implements the tcp socket transport of the ddoc RPC system.
// It provides the tcp connectors for the base package, which contributes
// connection pooling, buffer reuse and request routing. See the base package
// documentation for the underlying transport mechanisms.
//
// Both sides apply the configured socket options (TCPConf, SocketConf) to
// every connection: TCP_NODELAY, keep-alive, linger and the socket buffer sizes.
//
// The default server read buffer is 512 KB and can be changed with
// ServerTransportConfig.StreamBufferSize.
package tcp
