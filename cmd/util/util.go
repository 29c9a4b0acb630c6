package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/lib/db/engines/dense"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/lib/table/ltable"
	"github.com/ValentinKolb/dLasso/rpc/client"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/ValentinKolb/dLasso/rpc/serializer"
	"github.com/ValentinKolb/dLasso/rpc/transport/http"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (DLASSO_<FLAG>)
	EnvPrefix = "dlasso"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DLASSO_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// SetupRPCClientFlags adds the flags needed to reach a table server to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the table server. Multiple endpoints can be specified as a comma-separated list, requests are balanced round-robin"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 4, WrapString("Idle connections kept per endpoint"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try a request"))

	key = "shard"
	cmd.PersistentFlags().Int(key, 100, WrapString("ID of the shard to connect to"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("transport-retries"),
		Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.New(viper.GetString("serializer"))
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return uint64(viper.GetInt("shard"))
}

// NewRPCTableStore connects to the configured table server
func NewRPCTableStore() (table.ITableStore, error) {
	s, err := GetSerializer()
	if err != nil {
		return nil, err
	}
	return client.NewRPCTableStore(GetShardID(), *GetClientConfig(), http.NewHttpClientTransport(), s)
}

// NewTableStore creates the store selected by kind: "local" for an in process
// store, "rpc" for a connection to a table server
func NewTableStore(kind string) (table.ITableStore, error) {
	switch kind {
	case "local":
		return ltable.NewLocalStore(func() db.RowDB { return dense.NewDenseDB(nil) }), nil
	case "rpc":
		return NewRPCTableStore()
	default:
		return nil, fmt.Errorf("invalid store %q (expected local or rpc)", kind)
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
