package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/db/engines/sqlite"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/dstore"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	thttp "github.com/ValentinKolb/dDoc/rpc/transport/http"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the shard ID, the store it encapsulates and the adapter
// that handles requests for the store
type serverShard struct {
	ID      uint64
	Local   bool
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	nodeHost   *dragonboat.NodeHost
	metrics    *http.Server
	closeOnce  sync.Once
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer.
// It blocks until the server is closed (Close, SIGINT or SIGTERM) and shuts the shards
// down before returning. Snapshots of local shards are saved at that point if enabled.
func (s *rpcServer) Serve() error {
	if err := s.init(); err != nil {
		s.shutdown()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := s.Close(); err != nil {
			Logger.Errorf("failed to close transport: %v", err)
		}
	}()

	if s.config.MetricsEndpoint != "" {
		s.serveMetrics()
	}

	err := s.transport.Listen(s.config)
	s.shutdown()
	return err
}

// Close stops the transport. Serve returns once the shards are shut down.
func (s *rpcServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		Logger.Infof("stopping RPC server")
		err = s.transport.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Get appropriate shard
		shard, ok := s.shards.Load(shardId)

		if !ok {
			// Case shard does not exist -> error
			unknownShardRequests.Inc()
			respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			// Case request can not be decoded -> error
			malformedRequests.Inc()
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			// Let the adapter handle the request
			start := time.Now()
			respMsg = shard.Adapter.Handle(&msg, shard.Store)
			observeMessage(shardId, &msg, respMsg, start)
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// dbFactory returns the factory for the databases of a shard.
// Local sqlite shards get their own file in the data dir, replicated shards are
// rebuilt from the raft log and therefore keep their state in memory.
func (s *rpcServer) dbFactory(shard common.ServerShard) store.DBFactory {
	switch s.config.Engine {
	case common.EngineSQLite:
		path := ""
		if shard.Type == common.ShardTypeLocalIStore {
			path = filepath.Join(s.config.DataDir, fmt.Sprintf("shard-%d.sqlite", shard.ShardID))
		}
		return func() (db.KVDB, error) {
			return sqlite.NewSQLiteDB(&sqlite.DBOptions{Path: path})
		}
	default:
		return func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil }
	}
}

func (s *rpcServer) init() error {

	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	switch s.config.Engine {
	case "", common.EngineMaple, common.EngineSQLite:
	default:
		return fmt.Errorf("invalid engine: %s", s.config.Engine)
	}

	// Create the Dragonboat NodeHost
	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	// Configure the timeout for the distributed store
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of remote and or local shards.
		All shards speak the IStore protocol, the document store and the session
		store live on the client side.
	*/

	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("shard %d is configured twice", shardConfig.ShardID)
		}

		switch shardConfig.Type {
		case common.ShardTypeLocalIStore:
			st, err := lstore.NewLocalStore(s.dbFactory(shardConfig))
			if err != nil {
				return fmt.Errorf("failed to create local store for shard %d: %w", shardConfig.ShardID, err)
			}
			s.shards.Store(shardConfig.ShardID, serverShard{
				ID:      shardConfig.ShardID,
				Local:   true,
				Store:   st,
				Adapter: NewIStoreServerAdapter(),
			})
			if s.config.Snapshots {
				s.restoreShard(shardConfig.ShardID, st)
			}
			Logger.Infof("created local store for shard %d", shardConfig.ShardID)

		case common.ShardTypeRemoteIStore:
			if s.nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create remote store")
			}

			// Start Raft for the shard
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMaschineFactory(s.dbFactory(shardConfig)), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}

			s.shards.Store(shardConfig.ShardID, serverShard{
				ID:      shardConfig.ShardID,
				Store:   dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout),
				Adapter: NewIStoreServerAdapter(),
			})
			Logger.Infof("created distributed store for shard %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	Logger.Infof("ddoc setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// restoreShard loads the snapshot of a local shard if there is one
func (s *rpcServer) restoreShard(shardID uint64, st store.IStore) {
	snap, ok := st.(store.ISnapshotter)
	if !ok {
		return
	}
	path := snapshotPath(s.config.DataDir, shardID)
	loaded, err := loadSnapshot(snap, path)
	switch {
	case err != nil:
		Logger.Errorf("failed to load snapshot of shard %d: %v", shardID, err)
	case loaded:
		Logger.Infof("restored shard %d from %s", shardID, path)
	}
}

// shutdown saves the snapshots of the local shards and closes all stores
func (s *rpcServer) shutdown() {
	if s.metrics != nil {
		if err := s.metrics.Close(); err != nil {
			Logger.Warningf("failed to close metrics listener: %v", err)
		}
	}

	s.shards.Range(func(id uint64, shard serverShard) bool {
		if snap, ok := shard.Store.(store.ISnapshotter); ok && shard.Local && s.config.Snapshots {
			path := snapshotPath(s.config.DataDir, id)
			if err := saveSnapshot(snap, path); err != nil {
				Logger.Errorf("failed to save snapshot of shard %d: %v", id, err)
			} else {
				Logger.Infof("saved snapshot of shard %d to %s", id, path)
			}
		}
		if closer, ok := shard.Store.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				Logger.Warningf("failed to close shard %d: %v", id, err)
			}
		}
		s.shards.Delete(id)
		return true
	})

	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}
}

// serveMetrics starts the optional metrics listener next to the rpc transport
func (s *rpcServer) serveMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", thttp.MetricsHandler)
	s.metrics = &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}

	go func() {
		Logger.Infof("serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics listener failed: %v", err)
		}
	}()
}
