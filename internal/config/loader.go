package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAPIURL        = "CRONBOARD_API_URL"
	EnvDashboardPort = "CRONBOARD_DASHBOARD_PORT"
	EnvLogLevel      = "CRONBOARD_LOG_LEVEL"
)

// ConfigPath returns the default configuration file path: ~/.cronboard/config.json.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// DataDir returns the cronboard data directory: ~/.cronboard.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cronboard"
	}
	return filepath.Join(home, ".cronboard")
}

// TriggersPath returns the persisted trigger store: ~/.cronboard/triggers.json.
func TriggersPath() string {
	return filepath.Join(DataDir(), "triggers.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads and parses the config file at path, then applies environment
// overrides. If path is empty, ConfigPath() is used.
// On parse failure it logs a warning and returns DefaultConfig().
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	loadDotEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			applyEnv(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		slog.Warn("config: failed to parse, using defaults", "path", path, "err", err)
		cfg2 := DefaultConfig()
		applyEnv(&cfg2)
		return &cfg2, nil
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// loadDotEnv reads .env from the working directory and the data dir.
// Variables already set in the environment win.
func loadDotEnv() {
	for _, p := range []string{".env", filepath.Join(DataDir(), ".env")} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("config: failed to load env file", "path", p, "err", err)
		}
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.Backend.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDashboardPort)); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Dashboard.Port = port
		} else {
			slog.Warn("config: ignoring invalid port override", "env", EnvDashboardPort, "value", v)
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
}

// Save writes cfg to path as indented JSON, or YAML for .yaml/.yml paths.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		// Append a trailing newline for POSIX compliance.
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
