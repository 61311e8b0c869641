// Package config loads engine settings from defaults, an optional yaml
// file and AUDIOCHAIN_ prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/log"
	"pipelined.dev/audiochain/param"
	"pipelined.dev/audiochain/pool"
)

// EnvPrefix is the prefix of environment variables.
const EnvPrefix = "AUDIOCHAIN"

// Settings of the engine.
type Settings struct {
	Tuning     bool   `mapstructure:"tuning"`
	TraceAsync bool   `mapstructure:"traceasync"`
	Trace      string `mapstructure:"trace"`
	LogInit    bool   `mapstructure:"loginit"`
	LogMalloc  bool   `mapstructure:"logmalloc"`
	LogCycles  bool   `mapstructure:"logcycles"`

	CyclesMeasure         bool          `mapstructure:"cyclesmeasure"`
	CyclesCallbackTimeout time.Duration `mapstructure:"cyclescallbacktimeout"`
	CyclesMeasureTimeout  time.Duration `mapstructure:"cyclesmeasuretimeout"`

	ChunkPool string         `mapstructure:"chunkpool"`
	AlgoPool  string         `mapstructure:"algopool"`
	Pools     map[string]int `mapstructure:"pools"`

	LowLatency          bool          `mapstructure:"lowlatency"`
	ReinitBudgetPercent int           `mapstructure:"reinitbudgetpercent"`
	ClampPolicy         string        `mapstructure:"clamppolicy"`
	WarningDedup        time.Duration `mapstructure:"warningdedup"`
	FramePeriod         time.Duration `mapstructure:"frameperiod"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tuning", true)
	v.SetDefault("traceasync", false)
	v.SetDefault("trace", "info")
	v.SetDefault("loginit", false)
	v.SetDefault("logmalloc", false)
	v.SetDefault("logcycles", false)

	v.SetDefault("cyclesmeasure", true)
	v.SetDefault("cyclescallbacktimeout", 5*time.Second)
	v.SetDefault("cyclesmeasuretimeout", 500*time.Millisecond)

	v.SetDefault("chunkpool", string(pool.TCM))
	v.SetDefault("algopool", string(pool.RAMInt))
	v.SetDefault("pools", map[string]any{
		string(pool.TCM):    pool.DefaultTCMSize,
		string(pool.RAMInt): pool.DefaultRAMIntSize,
		string(pool.RAMExt): pool.DefaultRAMExtSize,
	})

	v.SetDefault("lowlatency", false)
	v.SetDefault("reinitbudgetpercent", 10)
	v.SetDefault("clamppolicy", param.Clamp.String())
	v.SetDefault("warningdedup", time.Second)
	v.SetDefault("frameperiod", time.Duration(0))
}

// Default returns default settings. Environment is ignored.
func Default() Settings {
	v := viper.New()
	setDefaults(v)
	s, err := unmarshal(v)
	if err != nil {
		panic(fmt.Sprintf("default settings: %v", err))
	}
	return s
}

// Load reads settings. Path is optional; values from environment
// override values from file.
func Load(path string) (Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("error reading settings %q: %w", path, err)
		}
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks settings values.
func (s Settings) Validate() error {
	const op = "validate settings"
	if _, err := param.ParsePolicy(s.ClampPolicy); err != nil {
		return err
	}
	if _, err := log.ParseTrace(s.Trace); err != nil {
		return err
	}
	if s.ReinitBudgetPercent < 0 || s.ReinitBudgetPercent > 100 {
		return fault.New(fault.OutOfRange, op, "reinitBudgetPercent", "%d not in [0..100]", s.ReinitBudgetPercent)
	}
	if s.FramePeriod < 0 {
		return fault.New(fault.OutOfRange, op, "framePeriod", "negative %v", s.FramePeriod)
	}
	sizes := s.PoolSizes()
	for _, name := range []string{s.ChunkPool, s.AlgoPool} {
		tag, err := pool.ParseTag(name)
		if err != nil {
			return err
		}
		if _, ok := sizes[tag]; !ok {
			return fault.New(fault.NotFound, op, name, "pool has no size")
		}
	}
	return nil
}

// Policy returns parsed clamp policy.
func (s Settings) Policy() param.Policy {
	p, _ := param.ParsePolicy(s.ClampPolicy)
	return p
}

// Level returns parsed trace level.
func (s Settings) Level() logrus.Level {
	l, _ := log.ParseTrace(s.Trace)
	return l
}

// PoolSizes returns pool budgets mapped to tags.
func (s Settings) PoolSizes() map[pool.Tag]int {
	sizes := make(map[pool.Tag]int, len(s.Pools))
	for name, size := range s.Pools {
		if tag, err := pool.ParseTag(name); err == nil {
			sizes[tag] = size
		}
	}
	return sizes
}

// ChunkPoolTag returns tag of the pool chunks are allocated from.
func (s Settings) ChunkPoolTag() pool.Tag {
	tag, _ := pool.ParseTag(s.ChunkPool)
	return tag
}

// AlgoPoolTag returns tag of the pool algo configs are allocated from.
func (s Settings) AlgoPoolTag() pool.Tag {
	tag, _ := pool.ParseTag(s.AlgoPool)
	return tag
}

// Dump returns human readable settings.
func (s Settings) Dump() string {
	return spew.Sdump(s)
}
