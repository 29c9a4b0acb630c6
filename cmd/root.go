package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dLasso/cmd/hello"
	"github.com/ValentinKolb/dLasso/cmd/lasso"
	"github.com/ValentinKolb/dLasso/cmd/serve"
	"github.com/ValentinKolb/dLasso/cmd/table"
	"github.com/ValentinKolb/dLasso/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dlasso",
		Short: "distributed lasso solver",
		Long: fmt.Sprintf(`dLasso (v%s)

Stale synchronous parallel coordinate descent for L1 regularized least
squares. Workers in many processes share their predictions through a table
server and may run a bounded number of clocks ahead of each other.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dLasso",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dLasso v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lasso.LassoCmd)
	RootCmd.AddCommand(hello.HelloCmd)
	RootCmd.AddCommand(table.TableCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, json, gob, optionally prefixed with snappy- e.g. snappy-binary)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
