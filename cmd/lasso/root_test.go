package lasso

import (
	"testing"

	"github.com/ValentinKolb/dLasso/lib/lasso"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setFlags(t *testing.T, values map[string]any) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	require.NoError(t, viper.BindPFlags(LassoCmd.Flags()))
	for k, v := range values {
		viper.Set(k, v)
	}
}

func TestSolverConfigDefaults(t *testing.T) {
	setFlags(t, nil)

	cfg, err := solverConfig()
	require.NoError(t, err)
	assert.Equal(t, lasso.DefaultConfig(), cfg)
}

func TestSolverConfigFromFlags(t *testing.T) {
	setFlags(t, map[string]any{
		"store":            "rpc",
		"num-clients":      2,
		"num-threads":      3,
		"client-id":        1,
		"staleness-policy": "strict",
		"lambda":           0.5,
		"seed":             42,
	})

	cfg, err := solverConfig()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.NumWorkers())
	assert.Equal(t, lasso.SkewStrict, cfg.SkewPolicy)
	assert.Equal(t, 0.5, cfg.Lambda)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 3, cfg.GlobalRank(0))
}

func TestSolverConfigErrors(t *testing.T) {
	tests := map[string]map[string]any{
		"unknown policy":       {"staleness-policy": "lenient"},
		"local multi client":   {"num-clients": 2},
		"client id too large":  {"store": "rpc", "num-clients": 2, "client-id": 2},
		"ratio out of range":   {"minibatch-ratio": 1.5},
		"colliding table ids":  {"loss-table-id": 0},
		"negative padding row": {"num-unused-rows": -1},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			setFlags(t, values)
			_, err := solverConfig()
			assert.Error(t, err)
		})
	}
}

func TestDataSource(t *testing.T) {
	setFlags(t, map[string]any{"x-file": "x.libsvm", "y-file": "y.txt", "num-partitions": 4})

	cfg, err := solverConfig()
	require.NoError(t, err)
	src, err := dataSource(cfg)
	require.NoError(t, err)
	assert.Equal(t, "x.libsvm", src.XFile)
	assert.Equal(t, 4, src.NumPartitions)
	assert.True(t, src.GlobalData)

	setFlags(t, nil)
	_, err = dataSource(cfg)
	assert.Error(t, err)
}
