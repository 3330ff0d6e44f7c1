package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL = "http://localhost:8000"
	DefaultTimeout   = 30 * time.Second
)

type Config struct {
	ServerURL   string        `yaml:"server_url"`
	DataDir     string        `yaml:"data_dir"`
	Timeout     time.Duration `yaml:"timeout"`
	LogRequests bool          `yaml:"log_requests"`
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func Default() Config {
	return Config{
		ServerURL: DefaultServerURL,
		DataDir:   defaultDataDir(),
		Timeout:   DefaultTimeout,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".taskflow"
	}
	return filepath.Join(home, ".taskflow")
}

// LoadFile overlays the YAML file at path on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Load applies environment overrides and then non-empty flags on top of base.
func Load(base Config, flagServerURL, flagDataDir string) Config {
	cfg := base
	cfg.ServerURL = getEnv("TASKFLOW_SERVER_URL", cfg.ServerURL)
	cfg.DataDir = getEnv("TASKFLOW_DATA_DIR", cfg.DataDir)
	if d, err := time.ParseDuration(getEnv("TASKFLOW_TIMEOUT", "")); err == nil {
		cfg.Timeout = d
	}
	if v := getEnv("TASKFLOW_LOG_REQUESTS", ""); v != "" {
		cfg.LogRequests = strings.EqualFold(v, "true") || v == "1"
	}
	if flagServerURL != "" {
		cfg.ServerURL = flagServerURL
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	return cfg
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server url %q: scheme must be http or https", c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server url %q: missing host", c.ServerURL)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}
