package server

import (
	"fmt"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/db/engines/dense"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/lib/table/dtable"
	"github.com/ValentinKolb/dLasso/lib/table/ltable"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/ValentinKolb/dLasso/rpc/serializer"
	"github.com/ValentinKolb/dLasso/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a shard of the RPC server: the store it encapsulates and
// the adapter that handles requests for the store
type serverShard struct {
	Store   table.ITableStore
	Adapter IRPCServerAdapter
}

// RPCServer hosts table stores and serves them over a transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	nodeHost   *dragonboat.NodeHost
}

// NewRPCServer creates a new RPC server
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// handle decodes a request, lets the adapter of the shard handle it and encodes the response
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	shard, ok := s.shards.Load(shardId)
	if !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		respMsg = shard.Adapter.Handle(&msg, shard.Store)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		// an error message without payload always serializes
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

func (s *RPCServer) init() error {
	common.InitLoggers(s.config.LogLevel)

	dbFactory := func() db.RowDB { return dense.NewDenseDB(nil) }

	// Only create the NodeHost if we have raft shards
	if s.config.HasRemoteShard() {
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	for _, shardConfig := range s.config.Shards {
		switch shardConfig.Type {
		case common.ShardTypeLocalTable:
			s.shards.Store(shardConfig.ShardID, serverShard{
				Store:   ltable.NewLocalStore(dbFactory),
				Adapter: NewTableServerAdapter(),
			})
			Logger.Infof("created local table store for shard %d", shardConfig.ShardID)

		case common.ShardTypeRemoteTable:
			err := s.nodeHost.StartConcurrentReplica(
				s.config.ClusterMembers,
				false,
				dtable.CreateStateMachineFactory(dbFactory),
				s.config.ToDragonboatConfig(shardConfig.ShardID),
			)
			if err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}

			store := dtable.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout)
			store.SetStaleReads(s.config.StaleReads)
			s.shards.Store(shardConfig.ShardID, serverShard{
				Store:   store,
				Adapter: NewTableServerAdapter(),
			})
			Logger.Infof("started raft table store for shard %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	s.transport.RegisterHandler(s.handle)
	Logger.Infof("dLasso table server setup completed successfully")
	return nil
}

// Serve initializes the shards and starts the transport layer. It blocks until the transport stops.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	defer s.close()
	return s.transport.Listen(s.config)
}

func (s *RPCServer) close() {
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
}
