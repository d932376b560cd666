package sweeper

import (
	"time"

	"github.com/smallbiznis/rebill/internal/config"
)

// Config controls sweep cadence and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		BatchSize:   100,
		JobTimeout:  10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

// ProvideConfig maps the flat env config onto sweep settings.
func ProvideConfig(cfg config.Config) Config {
	out := Config{BatchSize: cfg.SweepBatchSize}
	if cfg.SweepIntervalSeconds > 0 {
		out.RunInterval = time.Duration(cfg.SweepIntervalSeconds) * time.Second
	}
	return out.withDefaults()
}
