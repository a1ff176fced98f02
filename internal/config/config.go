package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PathsConfig contains path-related configuration
type PathsConfig struct {
	DataDir         string `mapstructure:"data_dir"`
	LogFile         string `mapstructure:"log_file"`
	HistoryDB       string `mapstructure:"history_db"`
	ETAHistory      string `mapstructure:"eta_history"`
	ApplicationsDir string `mapstructure:"applications_dir"`
}

// TimeoutsConfig contains every timeout the orchestration core uses.
// Tool output formats and network speeds are not a stable contract, so
// all of these are tunable rather than hard-coded.
type TimeoutsConfig struct {
	Probe     time.Duration `mapstructure:"probe"`
	Authorize time.Duration `mapstructure:"authorize"`
	Stall     time.Duration `mapstructure:"stall"`
	KillGrace time.Duration `mapstructure:"kill_grace"`
}

// ToolsConfig selects preferred external tools
type ToolsConfig struct {
	AURHelper string   `mapstructure:"aur_helper"`
	Terminals []string `mapstructure:"terminals"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Color string `mapstructure:"color"`
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".config", "asmctl"))
	}
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("ASMCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found - use defaults
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Paths.DataDir = expandPath(cfg.Paths.DataDir)
	cfg.Paths.LogFile = expandPath(cfg.Paths.LogFile)
	cfg.Paths.HistoryDB = expandPath(cfg.Paths.HistoryDB)
	cfg.Paths.ETAHistory = expandPath(cfg.Paths.ETAHistory)
	cfg.Paths.ApplicationsDir = expandPath(cfg.Paths.ApplicationsDir)

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}
	if homeDir == "" {
		homeDir = "."
	}

	dataDir := filepath.Join(homeDir, ".local", "share", "asmctl")
	viper.SetDefault("paths.data_dir", dataDir)
	viper.SetDefault("paths.log_file", filepath.Join(dataDir, "asmctl.log"))
	viper.SetDefault("paths.history_db", filepath.Join(dataDir, "history.db"))
	viper.SetDefault("paths.eta_history", filepath.Join(homeDir, ".config", "asmctl", "eta_history.json"))
	viper.SetDefault("paths.applications_dir", filepath.Join(homeDir, "Applications"))

	viper.SetDefault("timeouts.probe", 2*time.Second)
	viper.SetDefault("timeouts.authorize", 120*time.Second)
	viper.SetDefault("timeouts.stall", 10*time.Minute)
	viper.SetDefault("timeouts.kill_grace", 5*time.Second)

	viper.SetDefault("tools.aur_helper", "paru")
	viper.SetDefault("tools.terminals", []string{"gnome-terminal", "konsole", "xfce4-terminal", "xterm"})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.color", "auto")
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	return os.ExpandEnv(path)
}
