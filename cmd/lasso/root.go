package lasso

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/dLasso/cmd/util"
	"github.com/ValentinKolb/dLasso/lib/dataio"
	"github.com/ValentinKolb/dLasso/lib/lasso"
	"github.com/ValentinKolb/dLasso/lib/ssp"
	"github.com/ValentinKolb/dLasso/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// LassoCmd runs the solver threads of one client process
	LassoCmd = &cobra.Command{
		Use:   "lasso",
		Short: "Solve a lasso problem with stale synchronous coordinate descent",
		Long: `Run the workers of one client process. All clients of a run connect to the
same table server (--store rpc) and are started with the same configuration
except --client-id. With --store local a single client runs in process.
Flags can be set as DLASSO_<FLAG> environment variables (e.g. DLASSO_NUM_THREADS=4).`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: run,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupRPCClientFlags(LassoCmd)

	def := lasso.DefaultConfig()
	f := LassoCmd.Flags()

	// process group
	f.Int("num-clients", def.NumClients, util.WrapString("Number of client processes"))
	f.Int("num-threads", def.NumThreads, util.WrapString("Number of worker threads per client"))
	f.Int("client-id", def.ClientID, util.WrapString("ID of this client in [0, num-clients)"))
	f.String("store", "local", util.WrapString("Table store: local (single client, in process) or rpc (table server)"))
	f.Duration("poll-interval", ssp.DefaultPollInterval, util.WrapString("Upper bound of the backoff when waiting on clocks of an rpc store"))

	// synchronization
	f.Int("staleness", def.Staleness, util.WrapString("How many clocks a worker may run ahead of the slowest one"))
	f.String("staleness-policy", string(def.SkewPolicy), util.WrapString("Handling of clock skews beyond the bound: clamp (drop) or strict (abort)"))

	// data
	f.String("x-file", "", util.WrapString("Design matrix in transposed libsvm format, one line per feature. Described by <x-file>.meta"))
	f.String("y-file", "", util.WrapString("Labels, one per line"))
	f.Bool("global-data", def.GlobalData, util.WrapString("Every client reads the whole x-file. Otherwise clients read their own partitions <x-file>.<i>"))
	f.Int("num-partitions", 1, util.WrapString("Number of partition files (without global-data)"))
	f.Int("num-partitions-per-worker", 1, util.WrapString("Partition files read per client (without global-data), the last client reads the remainder"))

	// optimization
	f.Float64("lambda", def.Lambda, util.WrapString("L1 regularization strength"))
	f.Float64("learning-rate", def.LearningRate, util.WrapString("Step size of the proximal update"))
	f.Int("num-epochs", def.NumEpochs, util.WrapString("Number of clocks every worker runs"))
	f.Int("num-epochs-per-eval", def.EvalInterval, util.WrapString("Evaluate the objective every n epochs"))
	f.Float64("minibatch-ratio", def.MinibatchRatio, util.WrapString("Share of the coordinates of a worker updated per step"))
	f.Int("num-reps", def.NumReps, util.WrapString("Proximal updates per step. Every repetition after the first redoes the update from the committed coefficients with the same gradient and adds its effect to the predictions"))
	f.Uint64("seed", 0, util.WrapString("Seed of the coordinate sampling, 0 draws one"))

	// tables
	f.Uint32("w-table-id", def.WTableID, util.WrapString("Table of the prediction vector and worker clocks"))
	f.Uint32("staleness-table-id", def.StalenessTableID, util.WrapString("Table of the clock skew histogram"))
	f.Uint32("loss-table-id", def.LossTableID, util.WrapString("Table of the evaluation ledger"))
	f.Uint32("unused-table-id", def.UnusedTableID, util.WrapString("Table of the padding traffic"))
	f.Int("num-unused-rows", def.NumUnusedRows, util.WrapString("Padding rows read and written every step, 0 disables padding"))
	f.Int("num-unused-cols", def.NumUnusedCols, util.WrapString("Width of the padding rows"))

	// output
	f.String("output-dir", "", util.WrapString("Directory for the loss and staleness.dist reports"))
	f.String("log-level", "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// solverConfig reads the solver configuration from viper
func solverConfig() (lasso.Config, error) {
	policy, err := lasso.ParseSkewPolicy(viper.GetString("staleness-policy"))
	if err != nil {
		return lasso.Config{}, err
	}

	cfg := lasso.Config{
		NumClients:       viper.GetInt("num-clients"),
		NumThreads:       viper.GetInt("num-threads"),
		ClientID:         viper.GetInt("client-id"),
		Staleness:        viper.GetInt("staleness"),
		SkewPolicy:       policy,
		Lambda:           viper.GetFloat64("lambda"),
		LearningRate:     viper.GetFloat64("learning-rate"),
		NumEpochs:        viper.GetInt("num-epochs"),
		EvalInterval:     viper.GetInt("num-epochs-per-eval"),
		MinibatchRatio:   viper.GetFloat64("minibatch-ratio"),
		NumReps:          viper.GetInt("num-reps"),
		Seed:             viper.GetUint64("seed"),
		GlobalData:       viper.GetBool("global-data"),
		WTableID:         viper.GetUint32("w-table-id"),
		StalenessTableID: viper.GetUint32("staleness-table-id"),
		LossTableID:      viper.GetUint32("loss-table-id"),
		UnusedTableID:    viper.GetUint32("unused-table-id"),
		NumUnusedRows:    viper.GetInt("num-unused-rows"),
		NumUnusedCols:    viper.GetInt("num-unused-cols"),
		OutputDir:        viper.GetString("output-dir"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if viper.GetString("store") == "local" && cfg.NumClients != 1 {
		return cfg, fmt.Errorf("a local store serves a single client, got num-clients %d", cfg.NumClients)
	}
	return cfg, nil
}

// dataSource reads the input files of this client from viper
func dataSource(cfg lasso.Config) (dataio.Source, error) {
	src := dataio.Source{
		XFile:                  viper.GetString("x-file"),
		YFile:                  viper.GetString("y-file"),
		GlobalData:             cfg.GlobalData,
		NumPartitions:          viper.GetInt("num-partitions"),
		NumPartitionsPerWorker: viper.GetInt("num-partitions-per-worker"),
		ClientID:               cfg.ClientID,
		NumClients:             cfg.NumClients,
	}
	if src.XFile == "" || src.YFile == "" {
		return src, fmt.Errorf("x-file and y-file are required")
	}
	return src, nil
}

func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(viper.GetString("log-level"))

	cfg, err := solverConfig()
	if err != nil {
		return err
	}
	src, err := dataSource(cfg)
	if err != nil {
		return err
	}
	fmt.Println(cfg.String())

	store, err := util.NewTableStore(viper.GetString("store"))
	if err != nil {
		return err
	}
	group, err := ssp.NewTableGroup(store, ssp.Config{
		NumWorkers:   cfg.NumWorkers(),
		Staleness:    cfg.Staleness,
		PollInterval: viper.GetDuration("poll-interval"),
	})
	if err != nil {
		return err
	}

	engine, err := lasso.NewSolverEngine(cfg, group, lasso.FromSource(src))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	if res != nil {
		fmt.Printf("run %s finished, squared loss %g\n", res.RunID, res.FinalSqLoss)
		fmt.Println(res.Ledger)
	}
	return nil
}
