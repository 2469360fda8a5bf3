// Package unix provides the client and server transports over Unix domain
// sockets. Only the connectors live here; framing, pooling and request
// multiplexing come from package base.
//
// The server removes a stale socket file before listening. Default stream
// buffer size is 64 KB, which fits the small documents of a local deployment.
package unix
