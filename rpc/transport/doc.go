// Package transport contains the contract between the rpc layer and the wire.
//
// A client transport sends a serialized request to a shard and blocks until the
// matching response arrives. A server transport accepts requests, hands them to
// the registered ServerHandleFunc together with the shard id and writes back
// whatever the handler returns. Neither side looks into the payload.
//
// Implementations live in the subpackages http, tcp and unix. The tcp and unix
// transports share their framing, connection pool and request multiplexing in
// package base. Package registry maps the transport names used in configuration
// to constructors.
package transport
