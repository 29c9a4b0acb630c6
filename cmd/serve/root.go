package serve

import (
	"fmt"
	"strconv"
	"strings"

	cmdUtil "github.com/ValentinKolb/dLasso/cmd/util"
	"github.com/ValentinKolb/dLasso/lib/db/util"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/ValentinKolb/dLasso/rpc/serializer"
	"github.com/ValentinKolb/dLasso/rpc/server"
	"github.com/ValentinKolb/dLasso/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a table server",
		Long:    `Start a table server hosting the shared tables of solver runs. The configuration can be set via command line flags or environment variables. The format of the environment variables is DLASSO_<flag> (e.g. DLASSO_TIMEOUT=15). Every metric of the server is exported on GET /metrics of the endpoint.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=ltable", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: ltable (in memory), dtable (raft replicated)"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dtable) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10000, cmdUtil.WrapString("(dtable) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied raft log entries. 0 disables automatic snapshots"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5000, cmdUtil.WrapString("(dtable) CompactionOverhead defines the number of log entries kept after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(dtable) DataDir is the directory used for the raft log and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dtable) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dtable) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "stale-reads"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("(dtable) Serve reads from the local replica without a read index. Writes are still linearizable, reads may miss the newest writes"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("(dtable) Timeout of raft proposals and reads in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// parseShards parses the ID=TYPE list of the shards flag
func parseShards(shardsConfig string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	for _, shardConfig := range strings.Split(shardsConfig, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}

		var shardType common.ServerShardType
		switch t := strings.TrimSpace(parts[1]); t {
		case "ltable":
			shardType = common.ShardTypeLocalTable
		case "dtable":
			shardType = common.ShardTypeRemoteTable
		default:
			return nil, fmt.Errorf("invalid shard type: %s (expected one of: ltable, dtable)", t)
		}

		shards = append(shards, common.ServerShard{ShardID: shardID, Type: shardType})
	}
	return shards, nil
}

// parseClusterMembers parses the ID=address list of the cluster-members flag.
// IDs are hashed to the numeric replica IDs raft uses.
func parseClusterMembers(members string) (map[uint64]string, error) {
	result := make(map[uint64]string)
	for _, member := range strings.Split(members, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		result[uint64(util.HashString(parts[0], 0))] = parts[1]
	}
	return result, nil
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.StaleReads = viper.GetBool("stale-reads")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	if !serveCmdConfig.HasRemoteShard() {
		return nil
	}

	// raft settings are only needed for dtable shards
	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required for dtable shards")
	}
	serveCmdConfig.ReplicaID = uint64(util.HashString(id, 0))

	members := viper.GetString("cluster-members")
	if members == "" {
		return fmt.Errorf("cluster-members is required for dtable shards")
	}
	if serveCmdConfig.ClusterMembers, err = parseClusterMembers(members); err != nil {
		return err
	}
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica %s in cluster members", id)
	}
	return nil
}

// run starts the table server
func run(_ *cobra.Command, _ []string) error {
	s, err := serializer.New(viper.GetString("serializer"))
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		http.NewHttpServerTransport(),
		s,
	)
	return serv.Serve()
}
