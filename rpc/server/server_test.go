package server

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/client"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport/registry"
)

const testShard = 100

// freeTCPAddr returns a loopback address that was free a moment ago
func freeTCPAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

type testServer struct {
	srv  *rpcServer
	done chan error
}

// startServer runs a server with one local shard and returns once clients can connect
func startServer(t *testing.T, transportName, serializerName string, conf common.ServerConfig) (*testServer, common.ClientConfig) {
	t.Helper()

	switch transportName {
	case "unix":
		conf.Transport.Endpoint = filepath.Join(t.TempDir(), "ddoc.sock")
	default:
		conf.Transport.Endpoint = freeTCPAddr(t)
	}
	if conf.Shards == nil {
		conf.Shards = []common.ServerShard{{ShardID: testShard, Type: common.ShardTypeLocalIStore}}
	}
	conf.TimeoutSecond = 5
	conf.LogLevel = "error"

	tr, err := registry.NewServer(transportName)
	if err != nil {
		t.Fatal(err)
	}
	ser, err := serializer.New(serializerName)
	if err != nil {
		t.Fatal(err)
	}

	ts := &testServer{srv: NewRPCServer(conf, tr, ser), done: make(chan error, 1)}
	go func() { ts.done <- ts.srv.Serve() }()

	endpoint := conf.Transport.Endpoint
	dial := func() error {
		network := "tcp"
		if transportName == "unix" {
			network = "unix"
		}
		c, err := net.Dial(network, endpoint)
		if err == nil {
			c.Close()
		}
		return err
	}
	deadline := time.Now().Add(5 * time.Second)
	for dial() != nil {
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up on %s", endpoint)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return ts, common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{endpoint},
			RetryCount:             2,
			ConnectionsPerEndpoint: 2,
			TCPConf:                common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
	}
}

// stop closes the server and waits for Serve to return
func (ts *testServer) stop(t *testing.T) {
	t.Helper()
	if err := ts.srv.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	select {
	case err := <-ts.done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after close")
	}
}

func newClient(t *testing.T, transportName, serializerName string, conf common.ClientConfig) store.IStore {
	t.Helper()
	tr, err := registry.NewClient(transportName)
	if err != nil {
		t.Fatal(err)
	}
	ser, err := serializer.New(serializerName)
	if err != nil {
		t.Fatal(err)
	}
	s, err := client.NewRPCStore(testShard, conf, tr, ser)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	for _, transportName := range registry.Names {
		for _, serializerName := range []string{"json", "gob", "binary"} {
			t.Run(fmt.Sprintf("%s/%s", transportName, serializerName), func(t *testing.T) {
				ts, conf := startServer(t, transportName, serializerName, common.ServerConfig{})
				defer ts.stop(t)

				s := newClient(t, transportName, serializerName, conf)
				exerciseStore(t, s)
			})
		}
	}
}

// exerciseStore runs every IStore operation against s
func exerciseStore(t *testing.T, s store.IStore) {
	t.Helper()

	if err := s.Set("users_1", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, ok, err := s.Get("users_1")
	if err != nil || !ok || string(val) != `{"id":"1"}` {
		t.Fatalf("Get returned %q, %v, %v", val, ok, err)
	}

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Errorf("Get of a missing key returned %v, %v", ok, err)
	}

	if err := s.Set("empty", []byte{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, ok, err = s.Get("empty")
	if err != nil || !ok || len(val) != 0 {
		t.Errorf("Get of an empty value returned %q, %v, %v", val, ok, err)
	}

	if err := s.MSet([]string{"users_2", "users_3"}, [][]byte{[]byte("2"), []byte("3")}); err != nil {
		t.Fatalf("MSet failed: %v", err)
	}
	values, err := s.MGet([]string{"users_2", "missing", "users_3", "empty"})
	if err != nil {
		t.Fatalf("MGet failed: %v", err)
	}
	if len(values) != 4 || string(values[0]) != "2" || values[1] != nil || string(values[2]) != "3" || values[3] == nil {
		t.Errorf("MGet returned %q", values)
	}

	if err := s.MSet([]string{"a"}, nil); err == nil {
		t.Error("MSet with mismatched pairs should fail")
	}

	if err := s.SetE("session", []byte("s"), 50*time.Millisecond); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}
	if err := s.SetEIfUnset("session", []byte("other"), time.Minute); err != nil {
		t.Fatalf("SetEIfUnset failed: %v", err)
	}
	if val, _, _ := s.Get("session"); !bytes.Equal(val, []byte("s")) {
		t.Errorf("SetEIfUnset overwrote a live value: %q", val)
	}
	time.Sleep(100 * time.Millisecond)
	if ok, err := s.Has("session"); err != nil || ok {
		t.Errorf("expired value still present: %v, %v", ok, err)
	}

	if err := s.Delete("users_1", "users_2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := s.Has("users_1"); ok {
		t.Error("users_1 still present after delete")
	}
	if ok, _ := s.Has("users_3"); !ok {
		t.Error("users_3 should be kept")
	}

	info, err := s.GetDBInfo()
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.DbType == "" {
		t.Errorf("GetDBInfo returned no db type: %+v", info)
	}
}

func TestUnknownShard(t *testing.T) {
	ts, conf := startServer(t, "tcp", "binary", common.ServerConfig{})
	defer ts.stop(t)

	tr, _ := registry.NewClient("tcp")
	defer tr.Close()
	s, err := client.NewRPCStore(testShard+1, conf, tr, serializer.NewBinarySerializer())
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = s.Get("key")
	if err == nil {
		t.Fatal("expected an error for an unknown shard")
	}
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Errorf("expected a store error, got %T: %v", err, err)
	}
}

func TestSnapshotsSurviveRestart(t *testing.T) {
	for _, engine := range []common.EngineType{common.EngineMaple, common.EngineSQLite} {
		t.Run(string(engine), func(t *testing.T) {
			conf := common.ServerConfig{
				Engine:    engine,
				DataDir:   t.TempDir(),
				Snapshots: engine == common.EngineMaple,
			}

			ts, clientConf := startServer(t, "unix", "binary", conf)
			s := newClient(t, "unix", "binary", clientConf)
			if err := s.Set("users_$dbindex", []byte(`[]`)); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			ts.stop(t)

			ts, clientConf = startServer(t, "unix", "binary", conf)
			defer ts.stop(t)
			s = newClient(t, "unix", "binary", clientConf)

			val, ok, err := s.Get("users_$dbindex")
			if err != nil || !ok || string(val) != `[]` {
				t.Errorf("value lost across restart: %q, %v, %v", val, ok, err)
			}
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	tr, _ := registry.NewServer("tcp")
	srv := NewRPCServer(common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: 1, Type: common.ShardTypeLocalIStore},
			{ShardID: 1, Type: common.ShardTypeLocalIStore},
		},
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
	}, tr, serializer.NewBinarySerializer())

	if err := srv.Serve(); err == nil {
		t.Error("expected an error for a duplicate shard")
	}

	tr, _ = registry.NewServer("tcp")
	srv = NewRPCServer(common.ServerConfig{
		Engine:    "rocksdb",
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
	}, tr, serializer.NewBinarySerializer())
	if err := srv.Serve(); err == nil {
		t.Error("expected an error for an unknown engine")
	}
}
