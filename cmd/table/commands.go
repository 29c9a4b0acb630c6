package table

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/spf13/cobra"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [table] [rowCapacity] [staleness]",
		Short: "Creates a table",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTable(args[0])
			if err != nil {
				return err
			}
			capacity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("rowCapacity must be a number: %w", err)
			}
			staleness, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("staleness must be a number: %w", err)
			}
			if err := rpcStore.CreateTable(t, db.TableInfo{RowCapacity: capacity, Staleness: staleness}); err != nil {
				return err
			}
			fmt.Println("created successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [table] [row]",
		Short: "Prints a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, row, err := parseCell(args[0], args[1])
			if err != nil {
				return err
			}
			values, err := rpcStore.Get(t, row)
			if err != nil {
				return err
			}
			fmt.Println(formatRow(values))
			return nil
		},
	}
	incCmd = &cobra.Command{
		Use:   "inc [table] [row] [col] [delta]",
		Short: "Adds delta to a cell",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, row, err := parseCell(args[0], args[1])
			if err != nil {
				return err
			}
			col, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("col must be a number: %w", err)
			}
			delta, err := strconv.ParseFloat(args[3], 64)
			if err != nil {
				return fmt.Errorf("delta must be a number: %w", err)
			}
			if err := rpcStore.Inc(t, row, col, delta); err != nil {
				return err
			}
			fmt.Println("inc successfully")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database of the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.GetDBInfo()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
)

func parseTable(s string) (uint32, error) {
	t, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("table must be a number: %w", err)
	}
	return uint32(t), nil
}

func parseCell(tableArg, rowArg string) (uint32, uint64, error) {
	t, err := parseTable(tableArg)
	if err != nil {
		return 0, 0, err
	}
	row, err := strconv.ParseUint(rowArg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("row must be a number: %w", err)
	}
	return t, row, nil
}

// formatRow prints values space separated
func formatRow(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
