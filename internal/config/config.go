// Package config loads the node's startup configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const DefaultPath = "config.json"

var ErrInvalidConfig = errors.New("invalid config")

// Config is built once at startup and passed by value into every component.
type Config struct {
	Port        int    `json:"port"`
	SharedDir   string `json:"shared_folder"`
	DownloadDir string `json:"download_folder"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`

	Transport   string `json:"transport"`
	HistoryDB   string `json:"history_db"`
	LogLevel    string `json:"log_level"`
	MaxSessions int    `json:"max_sessions"`
	MetricsAddr string `json:"metrics_addr"`
	Progress    bool   `json:"progress"`
}

func Default() Config {
	return Config{
		Port:        5000,
		SharedDir:   "shared",
		DownloadDir: "downloads",
		Transport:   "tls",
		LogLevel:    "info",
		Progress:    true,
	}
}

// Load reads path on top of Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.SharedDir == "" {
		return fmt.Errorf("%w: shared_folder is required", ErrInvalidConfig)
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("%w: download_folder is required", ErrInvalidConfig)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("%w: cert_file and key_file must be set together", ErrInvalidConfig)
	}
	switch c.Transport {
	case "", "tls", "quic":
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("%w: max_sessions must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// EnsureDirs creates the shared and download folders if they are missing.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.SharedDir, c.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
