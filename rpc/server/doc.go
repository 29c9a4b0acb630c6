// Package server implements the RPC server hosting table stores.
//
// A server hosts any number of shards. Every shard is an independent
// table.ITableStore, requests name the shard they address. The adapter of a
// shard translates messages into store calls and store errors back into
// messages, keeping their table.RetCode.
//
// Shard types, which can be mixed within a single server:
//
//   - ShardTypeLocalTable: an in process store (ltable), suitable for a single
//     server all workers connect to.
//
//   - ShardTypeRemoteTable: a store replicated with raft (dtable). RAFT
//     configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID and ClusterMembers) must be set.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards:        []common.ServerShard{{ShardID: 100, Type: common.ShardTypeLocalTable}},
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Requests are handled concurrently, every store is safe for concurrent use.
//	Serve must be called only once.
package server
