package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PipelineConfig holds the denormalizer tuning knobs that operators may adjust
// at runtime without restarting the process.
type PipelineConfig struct {
	BatchSize         int `mapstructure:"batchSize"`
	MaxDeferredPasses int `mapstructure:"maxDeferredPasses"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BatchSize:         10,
		MaxDeferredPasses: 100,
	}
}

type PipelineConfigHolder struct {
	current atomic.Value // holds PipelineConfig
}

func NewPipelineConfigHolder() (*PipelineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/orgstream")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ORGSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPipelineConfig()
		v.SetDefault("pipeline.batchSize", defaults.BatchSize)
		v.SetDefault("pipeline.maxDeferredPasses", defaults.MaxDeferredPasses)
	}

	var cfg PipelineConfig
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return nil, err
	}
	if err := validatePipelineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PipelineConfig
		if err := v.UnmarshalKey("pipeline", &updated); err != nil {
			log.Printf("[pipeline-config] reload failed: %v", err)
			return
		}
		if err := validatePipelineConfig(updated); err != nil {
			log.Printf("[pipeline-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pipeline-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPipelineConfigHolder wraps a fixed config, without file watching.
func NewStaticPipelineConfigHolder(cfg PipelineConfig) *PipelineConfigHolder {
	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PipelineConfigHolder) Get() PipelineConfig {
	return h.current.Load().(PipelineConfig)
}

func validatePipelineConfig(cfg PipelineConfig) error {
	if cfg.BatchSize <= 0 {
		return errors.New("pipeline.batchSize must be positive")
	}
	if cfg.MaxDeferredPasses <= 0 {
		return errors.New("pipeline.maxDeferredPasses must be positive")
	}
	return nil
}
