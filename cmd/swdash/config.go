package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

// Config holds all swdash configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr" validate:"required"`
	DBPath     string `json:"db_path" validate:"required"`
	LogLevel   string `json:"log_level" validate:"oneof=debug info warn warning error"`
	Metrics    bool   `json:"metrics"`

	// Maintenance is the cron spec of the store maintenance jobs; "off"
	// disables them.
	Maintenance string `json:"maintenance" validate:"required"`
}

func defaultConfig(dir string) Config {
	return Config{
		ListenAddr: ":4200",
		DBPath:     filepath.Join(dir, "swdash.db"),
		LogLevel:   "info",
		Metrics:    true,

		Maintenance: "@daily",
	}
}

func swdashDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".swdash"
	}
	return filepath.Join(home, ".swdash")
}

func settingsPath(dir string) string {
	return filepath.Join(dir, "settings.json")
}

// loadConfig layers defaults, settings.json and SWDASH_* variables.
func loadConfig(dir string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig(dir)

	// Layer 2: settings.json (ignore if missing).
	data, err := os.ReadFile(settingsPath(dir))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(dir), err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", settingsPath(dir), err)
	}

	// Layer 3: env vars override.
	if v := getenv("SWDASH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("SWDASH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("SWDASH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("SWDASH_METRICS"); v != "" {
		cfg.Metrics = v == "true" || v == "1"
	}
	if v := getenv("SWDASH_MAINTENANCE"); v != "" {
		cfg.Maintenance = v
	}
	return cfg, nil
}

// applyFlags overrides cfg with the flags set on cmd.
func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("listen-addr") {
		cfg.ListenAddr, _ = flags.GetString("listen-addr")
	}
	if flags.Changed("db-path") {
		cfg.DBPath, _ = flags.GetString("db-path")
	}
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		cfg.LogLevel = strings.ToLower(v)
	}
	if flags.Changed("metrics") {
		cfg.Metrics, _ = flags.GetBool("metrics")
	}
	if flags.Changed("maintenance") {
		cfg.Maintenance, _ = flags.GetString("maintenance")
	}
}

func (c Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) maintenanceEnabled() bool {
	return !strings.EqualFold(c.Maintenance, "off")
}

// dsn turns the configured path into a libSQL file URI.
func (c Config) dsn() string {
	if strings.HasPrefix(c.DBPath, "file:") || strings.Contains(c.DBPath, "://") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}
