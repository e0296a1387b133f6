package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Name - Bot name used in replies and directory names
const Name string = "reixi"

// Version - Bot version
const Version string = "6.0.0"

// Description - Short description shown by help
const Description string = "utility-first general-purpose discord bot"

// SourceCode - Where the source lives
const SourceCode string = "https://github.com/cufee/reixi"

// DefaultPrefix - Prefix used when a guild has not set its own
const DefaultPrefix string = "rx "

// SuccessReaction - Reaction added to a command message that succeeded without a reply
const SuccessReaction string = "🍞"

// PermsCode - Minimal perms code for bot to post reaction role messages
const PermsCode int64 = 67628097

// MessageLimit - Soft cap on a single reply
const MessageLimit int = 2000

// SweepInterval - Default interval between dead reaction role message sweeps
const SweepInterval time.Duration = 30 * time.Minute

// CoreModule - Name of the module that can never be disabled
const CoreModule string = "core"

// Config - Process configuration read from the environment
type Config struct {
	Token         string        `env:"REIXI_TOKEN"`
	LogDir        string        `env:"REIXI_LOG_DIR"`
	DBDir         string        `env:"REIXI_DB_DIR"`
	LogLevel      string        `env:"REIXI_LOG_LEVEL" envDefault:"info"`
	Sweep         bool          `env:"REIXI_RR_SWEEP" envDefault:"false"`
	SweepInterval time.Duration `env:"REIXI_RR_SWEEP_INTERVAL" envDefault:"30m"`
	MetricsAddr   string        `env:"REIXI_METRICS_ADDR"`

	RuntimeDir string `env:"XDG_RUNTIME_DIR"`
	DataHome   string `env:"XDG_DATA_HOME"`
	Home       string `env:"HOME"`
}

// Load - Parse Config from the environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
