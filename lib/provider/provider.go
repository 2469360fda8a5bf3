package provider

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/ValentinKolb/dDoc/lib/docstore"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/client"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/ValentinKolb/dDoc/rpc/transport/registry"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("provider")

const (
	DefaultHost       = "localhost"
	DefaultPort       = 8080
	DefaultTransport  = "tcp"
	DefaultSerializer = "binary"
	DefaultShard      = 100
)

// ErrClosed is returned by a provider after Close
var ErrClosed = errors.New("provider: closed")

// Config describes the ddoc server a provider connects to
type Config struct {
	Host string
	Port int
	// Socket is the path of the server socket, it replaces Host and Port for the unix transport
	Socket     string
	Transport  string // http, tcp or unix
	Serializer string // json, gob or binary
	Shard      uint64
	// Client holds timeouts, retries and socket options. Endpoints are derived
	// from Host, Port and Socket if left empty.
	Client common.ClientConfig
}

// Provider connects to a backend once and hands out document stores and
// session stores that share this connection.
type Provider struct {
	mu        sync.Mutex
	conf      Config
	backend   store.IStore
	transport transport.IRPCClientTransport
	closed    bool
}

// New creates a provider for a remote backend. Zero values of conf are replaced by the defaults.
// No connection is made before Connect or the first Store / SessionStore call.
func New(conf Config) *Provider {
	if conf.Host == "" {
		conf.Host = DefaultHost
	}
	if conf.Port == 0 {
		conf.Port = DefaultPort
	}
	if conf.Transport == "" {
		conf.Transport = DefaultTransport
	}
	if conf.Serializer == "" {
		conf.Serializer = DefaultSerializer
	}
	if conf.Shard == 0 {
		conf.Shard = DefaultShard
	}
	if len(conf.Client.Transport.Endpoints) == 0 {
		conf.Client.Transport.Endpoints = []string{endpoint(conf)}
	}
	if conf.Client.TimeoutSecond == 0 {
		conf.Client.TimeoutSecond = 10
	}
	return &Provider{conf: conf}
}

// NewWithBackend creates a provider for an existing backend, e.g. an in-process lstore.
// Close does not close the backend.
func NewWithBackend(backend store.IStore) *Provider {
	return &Provider{backend: backend}
}

// Config returns the configuration of the provider
func (p *Provider) Config() Config {
	return p.conf
}

// Connect connects to the backend and returns it. Later calls return the same backend.
func (p *Provider) Connect() (store.IStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.backend != nil {
		return p.backend, nil
	}

	t, err := registry.NewClient(p.conf.Transport)
	if err != nil {
		return nil, err
	}
	s, err := serializer.New(p.conf.Serializer)
	if err != nil {
		return nil, err
	}

	backend, err := client.NewRPCStore(p.conf.Shard, p.conf.Client, t, s)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %v: %w", p.conf.Client.Transport.Endpoints, err)
	}

	log.Infof("connected to shard %d at %v (%s, %s)",
		p.conf.Shard, p.conf.Client.Transport.Endpoints, p.conf.Transport, p.conf.Serializer)

	p.backend = backend
	p.transport = t
	return backend, nil
}

// Store returns a document store for namespace. An empty idProp keeps the default "id".
func (p *Provider) Store(namespace, idProp string, opts ...docstore.Option) (*docstore.Store, error) {
	backend, err := p.Connect()
	if err != nil {
		return nil, err
	}
	if idProp != "" {
		opts = append([]docstore.Option{docstore.WithIDProperty(idProp)}, opts...)
	}
	return docstore.New(backend, namespace, opts...)
}

// SessionStore returns a session store on the same backend
func (p *Provider) SessionStore(opts ...session.Option) (*session.Store, error) {
	backend, err := p.Connect()
	if err != nil {
		return nil, err
	}
	return session.New(backend, opts...)
}

// Close closes the connection. Stores handed out before fail afterwards.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.transport == nil {
		return nil
	}
	err := p.transport.Close()
	p.transport = nil
	p.backend = nil
	return err
}

// endpoint builds the transport address from the config
func endpoint(conf Config) string {
	switch conf.Transport {
	case "unix":
		return conf.Socket
	case "http":
		return "http://" + net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
	default:
		return net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
	}
}

var _ io.Closer = (*Provider)(nil)
