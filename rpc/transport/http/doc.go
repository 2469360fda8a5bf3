// Package http provides the rpc transports over plain HTTP.
//
// Every request is a POST to /{shardId} with the serialized message as body. The
// response body is the serialized reply; transport level failures use HTTP status
// codes. The client spreads requests over its endpoints round-robin and retries
// failed posts. Endpoints without a scheme are taken as http://.
//
// The server mux also answers GET /metrics with the VictoriaMetrics counters of
// the process, so no separate listener is needed when http is the transport.
// Close shuts the http.Server down gracefully and Listen returns nil afterwards.
package http
