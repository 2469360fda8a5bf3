package provider

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/docstore"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/server"
	"github.com/ValentinKolb/dDoc/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a ddoc server with the default shard on a temporary unix socket
func startServer(t *testing.T) string {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "ddoc.sock")
	srv := server.NewRPCServer(common.ServerConfig{
		Shards:        []common.ServerShard{{ShardID: DefaultShard, Type: common.ShardTypeLocalIStore}},
		Transport:     common.ServerTransportConfig{Endpoint: socket},
		TimeoutSecond: 5,
		LogLevel:      "error",
	}, unix.NewUnixServerTransport(), serializer.NewBinarySerializer())

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		assert.NoError(t, srv.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	return socket
}

func TestNewDefaults(t *testing.T) {
	p := New(Config{})
	conf := p.Config()
	assert.Equal(t, DefaultHost, conf.Host)
	assert.Equal(t, DefaultPort, conf.Port)
	assert.Equal(t, DefaultTransport, conf.Transport)
	assert.Equal(t, DefaultSerializer, conf.Serializer)
	assert.Equal(t, uint64(DefaultShard), conf.Shard)
	assert.Equal(t, []string{"localhost:8080"}, conf.Client.Transport.Endpoints)

	p = New(Config{Host: "db", Port: 9000, Transport: "http"})
	assert.Equal(t, []string{"http://db:9000"}, p.Config().Client.Transport.Endpoints)

	p = New(Config{Transport: "unix", Socket: "/tmp/ddoc.sock"})
	assert.Equal(t, []string{"/tmp/ddoc.sock"}, p.Config().Client.Transport.Endpoints)
}

func TestInvalidTransport(t *testing.T) {
	p := New(Config{Transport: "carrier-pigeon"})
	_, err := p.Connect()
	assert.Error(t, err)

	p = New(Config{Serializer: "xml"})
	_, err = p.Store("users", "")
	assert.Error(t, err)
}

func TestRemoteStores(t *testing.T) {
	socket := startServer(t)

	p := New(Config{Transport: "unix", Socket: socket})
	defer p.Close()

	users, err := p.Store("users", "")
	require.NoError(t, err)

	doc, err := users.Post(docstore.Document{"name": "Ann"}, "user")
	require.NoError(t, err)
	id, ok := doc["id"].(string)
	require.True(t, ok)

	doc, err = users.Put(docstore.Document{"id": id, "age": 30}, "user")
	require.NoError(t, err)
	assert.Equal(t, "Ann", doc["name"])

	all, err := users.GetAll("user")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// a second store on the same namespace sees the same index
	again, err := p.Store("users", "")
	require.NoError(t, err)
	keys, err := again.Keys("user")
	require.NoError(t, err)
	assert.Equal(t, []string{"users_" + id}, keys)

	sessions, err := p.SessionStore(session.WithTTL(time.Minute))
	require.NoError(t, err)
	require.NoError(t, sessions.Set("sid", session.Data{"user": id}))
	data, ok, err := sessions.Get("sid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, data["user"])
}

func TestCustomIDProperty(t *testing.T) {
	backend, err := lstore.NewLocalStore(func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil })
	require.NoError(t, err)

	p := NewWithBackend(backend)
	s, err := p.Store("books", "isbn", docstore.WithIDGenerator(func() string { return "978" }))
	require.NoError(t, err)
	assert.Equal(t, "isbn", s.IDProperty())

	doc, err := s.Post(docstore.Document{"title": "Go"}, "book")
	require.NoError(t, err)
	assert.Equal(t, "978", doc["isbn"])
}

func TestClose(t *testing.T) {
	socket := startServer(t)

	p := New(Config{Transport: "unix", Socket: socket})
	_, err := p.Connect()
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Store("users", "")
	assert.ErrorIs(t, err, ErrClosed)
}
