package config

import (
	"path/filepath"
	"time"
)

// DefaultDataRoot is where everything lives when the config names nothing.
const DefaultDataRoot = "/usr/local/var/docsearcher"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = filepath.Join(DefaultDataRoot, "data")
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = filepath.Join(DefaultDataRoot, "indices")
	}
	if cfg.Storage.ManifestPath == "" {
		cfg.Storage.ManifestPath = filepath.Join(cfg.Storage.IndexDir, "manifest.db")
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 256
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}
}
