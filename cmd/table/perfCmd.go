package table

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dLasso/cmd/util"
	"github.com/ValentinKolb/dLasso/lib/db"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// perfTable is the table the benchmarks write to
const perfTable uint32 = 1 << 30

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for table servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads = 10
	perfRowSpread  = 100
	perfRowWidth   = 1000
	perfBatchSize  = 100
	perfSkip       = make([]string, 0)
)

// perfBenchmark is one operation measured by the perf command. op is called
// with a counter private to the calling goroutine.
type perfBenchmark struct {
	name string
	op   func(counter int) error
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. inc,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "rows"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different rows to use for the tests"))
	key = "row-width"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of columns of every row"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("Number of columns changed by one batch-inc"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfRowSpread = max(viper.GetInt("rows"), 1)
	perfRowWidth = max(viper.GetInt("row-width"), 1)
	perfBatchSize = min(max(viper.GetInt("batch-size"), 1), perfRowWidth)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func perfBenchmarks() []perfBenchmark {
	batch := db.NewUpdate(perfBatchSize)
	for i := 0; i < perfBatchSize; i++ {
		batch.Add(i*perfRowWidth/perfBatchSize, 1)
	}
	row := func(counter int) uint64 { return uint64(counter % perfRowSpread) }

	return []perfBenchmark{
		{"inc", func(c int) error {
			return rpcStore.Inc(perfTable, row(c), c%perfRowWidth, 1)
		}},
		{"batch-inc", func(c int) error {
			return rpcStore.BatchInc(perfTable, row(c), batch)
		}},
		{"get", func(c int) error {
			_, err := rpcStore.Get(perfTable, row(c))
			return err
		}},
		{"mixed", func(c int) error {
			// one read per write, like a solver step
			if c%2 == 0 {
				_, err := rpcStore.Get(perfTable, row(c))
				return err
			}
			return rpcStore.BatchInc(perfTable, row(c), batch)
		}},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for table servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Rows: %d, Row width: %d, Batch size: %d\n", perfNumThreads, perfRowSpread, perfRowWidth, perfBatchSize)
	fmt.Println()

	// the table keeps its content between runs, an existing table with another width fails here
	if err := rpcStore.CreateTable(perfTable, db.TableInfo{RowCapacity: perfRowWidth}); err != nil {
		return fmt.Errorf("create benchmark table: %w", err)
	}

	fmt.Println("staring tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bench := range perfBenchmarks() {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bench.name) {
				return
			}
			b.SetParallelism(perfNumThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := bench.op(counter); err != nil {
						log.Printf("(%s) - error: %v\n", bench.name, err)
					}
					counter++
				}
			})
		})
		results[bench.name] = result
		printResult(bench.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer",
		"Threads", "Rows", "RowWidth", "BatchSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		nsPerOp, opsPerSec, skipped := 0.0, 0.0, "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfRowSpread),
			strconv.Itoa(perfRowWidth),
			strconv.Itoa(perfBatchSize),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}
	return nil
}
