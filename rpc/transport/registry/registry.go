// Package registry selects a transport implementation by name.
package registry

import (
	"fmt"

	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/ValentinKolb/dDoc/rpc/transport/http"
	"github.com/ValentinKolb/dDoc/rpc/transport/tcp"
	"github.com/ValentinKolb/dDoc/rpc/transport/unix"
)

// Names lists the supported transports
var Names = []string{"http", "tcp", "unix"}

// NewServer creates the server transport with the given name
func NewServer(name string) (transport.IRPCServerTransport, error) {
	switch name {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected one of %v)", name, Names)
	}
}

// NewClient creates the client transport with the given name
func NewClient(name string) (transport.IRPCClientTransport, error) {
	switch name {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected one of %v)", name, Names)
	}
}
