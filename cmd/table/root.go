package table

import (
	"github.com/ValentinKolb/dLasso/cmd/util"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/spf13/cobra"
)

var (
	rpcStore table.ITableStore

	// TableCommands represents the table command group
	TableCommands = &cobra.Command{
		Use:               "table",
		Short:             "Inspect and benchmark tables of a table server",
		PersistentPreRunE: setupTableClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(TableCommands)

	TableCommands.AddCommand(createCmd)
	TableCommands.AddCommand(getCmd)
	TableCommands.AddCommand(incCmd)
	TableCommands.AddCommand(infoCmd)
	TableCommands.AddCommand(perfTestCmd)
}

// setupTableClient initializes the RPC table store client
func setupTableClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcStore, err = util.NewRPCTableStore()
	return err
}
