package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain/config"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/param"
	"pipelined.dev/audiochain/pool"
)

func TestDefault(t *testing.T) {
	s := config.Default()
	assert.True(t, s.Tuning)
	assert.True(t, s.CyclesMeasure)
	assert.Equal(t, 5*time.Second, s.CyclesCallbackTimeout)
	assert.Equal(t, 500*time.Millisecond, s.CyclesMeasureTimeout)
	assert.Equal(t, pool.TCM, s.ChunkPoolTag())
	assert.Equal(t, pool.RAMInt, s.AlgoPoolTag())
	assert.Equal(t, 10, s.ReinitBudgetPercent)
	assert.Equal(t, param.Clamp, s.Policy())
	assert.Equal(t, logrus.InfoLevel, s.Level())
	assert.Equal(t, pool.DefaultTCMSize, s.PoolSizes()[pool.TCM])
	assert.Contains(t, s.Dump(), "ReinitBudgetPercent")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
clampPolicy: reject
lowLatency: true
framePeriod: 10ms
trace: warning
pools:
  tcm: 1024
  ramint: 2048
  sdram: 4096
chunkPool: sdram
`), 0o600))

	t.Setenv("AUDIOCHAIN_REINITBUDGETPERCENT", "25")
	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, param.Reject, s.Policy())
	assert.True(t, s.LowLatency)
	assert.Equal(t, 10*time.Millisecond, s.FramePeriod)
	assert.Equal(t, logrus.WarnLevel, s.Level())
	assert.Equal(t, 25, s.ReinitBudgetPercent)
	assert.Equal(t, pool.Tag("sdram"), s.ChunkPoolTag())
	assert.Equal(t, 4096, s.PoolSizes()["sdram"])
}

func TestLoadErrors(t *testing.T) {
	var tests = []struct {
		name    string
		content string
		kind    fault.Kind
	}{
		{name: "policy", content: "clampPolicy: wrap", kind: fault.OutOfRange},
		{name: "budget", content: "reinitBudgetPercent: 150", kind: fault.OutOfRange},
		{name: "pool", content: "algoPool: sdram", kind: fault.NotFound},
		{name: "trace", content: "trace: loud", kind: fault.OutOfRange},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			require.NoError(t, os.WriteFile(path, []byte(test.content), 0o600))
			_, err := config.Load(path)
			assert.Equal(t, test.kind, fault.KindOf(err), "%v", err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, fault.ErrNotFound))
}
