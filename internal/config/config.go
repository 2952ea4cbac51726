// Package config loads runtime configuration: struct defaults, then an
// optional YAML file, then KORA_-prefixed environment variables, each layer
// overriding the previous one.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Env         string `koanf:"env"`
	ListenAddr  string `koanf:"listen_addr"`
	LogLevel    string `koanf:"log_level"`
	LogConsole  bool   `koanf:"log_console"`
	DatabaseURL string `koanf:"database_url"`

	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Notary     NotaryConfig     `koanf:"notary"`
	Simulation SimulationConfig `koanf:"simulation"`
	Sweeper    SweeperConfig    `koanf:"sweeper"`
}

type PipelineConfig struct {
	// SpeedThreshold in km/h; samples above it become incidents.
	SpeedThreshold float64 `koanf:"speed_threshold"`
}

type NotaryConfig struct {
	RPCURL          string        `koanf:"rpc_url"`
	ContractAddress string        `koanf:"contract_address"`
	Timeout         time.Duration `koanf:"timeout"`
}

type SimulationConfig struct {
	// DatasetPath points at the historical telemetry CSV. Empty means the
	// embedded sample dataset.
	DatasetPath     string        `koanf:"dataset_path"`
	DefaultInterval time.Duration `koanf:"default_interval"`
}

type SweeperConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Interval  time.Duration `koanf:"interval"`
	StaleAge  time.Duration `koanf:"stale_age"`
	BatchSize int           `koanf:"batch_size"`
}

func defaults() Config {
	return Config{
		Env:        "development",
		ListenAddr: ":8080",
		LogLevel:   "info",
		Pipeline:   PipelineConfig{SpeedThreshold: 180},
		Notary: NotaryConfig{
			Timeout: 30 * time.Second,
		},
		Simulation: SimulationConfig{
			DefaultInterval: 5 * time.Second,
		},
		Sweeper: SweeperConfig{
			Enabled:   true,
			Interval:  time.Minute,
			StaleAge:  5 * time.Minute,
			BatchSize: 50,
		},
	}
}

// Load reads configuration. path may be empty; a missing file at a non-empty
// path is an error, since the operator asked for it.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// KORA_NOTARY_RPC_URL → notary.rpc_url. Section separator is a double
	// underscore so key names may themselves contain underscores.
	err := k.Load(env.Provider("KORA_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "KORA_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}
