package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/CTAG07/Iconoclast/pkg/svgicon"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP server and the on-disk
// locations the icon service uses.
type ServerConfig struct {
	Addr         string `json:"addr"`
	LogLevel     string `json:"log_level"`
	CacheDir     string `json:"cache_dir"`
	DatabasePath string `json:"database_path"`
}

// Config is the top-level configuration struct that aggregates all other
// configs.
type Config struct {
	Server *ServerConfig   `json:"server_config"`
	Icons  *svgicon.Config `json:"icon_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:         ":7280",
		LogLevel:     "info",
		CacheDir:     "./data/cache",
		DatabasePath: "./data/iconoclast.db?_journal_mode=WAL&_busy_timeout=5000",
	}
}

// loadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func loadConfig(path string) (*Config, error) {
	config := &Config{
		Server: DefaultServerConfig(),
		Icons:  svgicon.DefaultConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}
