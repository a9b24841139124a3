// Package config loads the stratad application config: defaults, then a
// TOML file, then environment variables (env wins).
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// EnginePath is the engine schema file declaring databases and
	// processing strategies.
	EnginePath string         `toml:"engine_path"`
	Log        LogConfig      `toml:"log"`
	Observer   ObserverConfig `toml:"observer"`
	Ingest     IngestConfig   `toml:"ingest"`
}

type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

type IngestConfig struct {
	// Workers bounds concurrent file processing per task.
	Workers int `toml:"workers"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		EnginePath: "strata.toml",
		Log:        LogConfig{Level: "info", Format: "text"},
		Ingest:     IngestConfig{Workers: 4},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "stratad.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("STRATA_ENGINE_PATH"); v != "" {
		cfg.EnginePath = v
	}
	if v := os.Getenv("STRATA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STRATA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STRATA_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
	if v := os.Getenv("STRATA_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingest.Workers = n
		}
	}
	return cfg
}
