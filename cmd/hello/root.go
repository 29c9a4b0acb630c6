package hello

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/dLasso/cmd/util"
	"github.com/ValentinKolb/dLasso/lib/ssp"
	"github.com/ValentinKolb/dLasso/lib/table"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// HelloCmd checks the clock bounds of the stale synchronous protocol
var HelloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Verify that workers never observe a clock beyond the staleness bound",
	Long: `Every worker sleeps a random time, checks that no peer is more than
staleness clocks behind, publishes its progress and clocks. After a final
barrier all workers must have reached the same clock. Use it to check a
table server before running the solver on it.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return util.BindCommandFlags(cmd)
	},
	RunE: run,
}

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupRPCClientFlags(HelloCmd)

	f := HelloCmd.Flags()
	f.Int("num-clients", 1, util.WrapString("Number of client processes"))
	f.Int("num-threads", 4, util.WrapString("Number of worker threads per client"))
	f.Int("client-id", 0, util.WrapString("ID of this client in [0, num-clients)"))
	f.Int("staleness", 2, util.WrapString("How many clocks a worker may run ahead of the slowest one"))
	f.Int("iterations", 20, util.WrapString("Number of clocks every worker runs"))
	f.Duration("max-delay", 20*time.Millisecond, util.WrapString("Upper bound of the random sleep per iteration"))
	f.Uint32("table-id", 0, util.WrapString("Table holding the progress of the workers"))
	f.String("store", "local", util.WrapString("Table store: local (single client, in process) or rpc (table server)"))
	f.String("log-level", "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// runClient runs the verification for all threads of one client and returns the first error
func runClient(ctx context.Context, store table.ITableStore, numClients, numThreads, clientID, staleness int, cfg ssp.HelloConfig) error {
	numWorkers := numClients * numThreads
	group, err := ssp.NewTableGroup(store, ssp.Config{NumWorkers: numWorkers, Staleness: staleness})
	if err != nil {
		return err
	}
	if err := group.CreateTable(cfg.Table, numWorkers); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for thread := 0; thread < numThreads; thread++ {
		rank := clientID*numThreads + thread
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(rank)))
			if err := ssp.VerifyClockBounds(ctx, group, rank, cfg, rng); err != nil {
				once.Do(func() { firstErr = fmt.Errorf("worker %d: %w", rank, err) })
				cancel()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(viper.GetString("log-level"))

	numClients := viper.GetInt("num-clients")
	if viper.GetString("store") == "local" && numClients != 1 {
		return fmt.Errorf("a local store serves a single client, got num-clients %d", numClients)
	}

	store, err := util.NewTableStore(viper.GetString("store"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runClient(ctx, store,
		numClients,
		viper.GetInt("num-threads"),
		viper.GetInt("client-id"),
		viper.GetInt("staleness"),
		ssp.HelloConfig{
			Table:      viper.GetUint32("table-id"),
			Iterations: viper.GetInt("iterations"),
			MaxDelay:   viper.GetDuration("max-delay"),
		},
	)
	if err != nil {
		return err
	}
	fmt.Println("hello: all clock bounds held")
	return nil
}
