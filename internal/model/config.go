package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Ledger backend identifiers accepted in Config.LedgerBackend.
const (
	LedgerBackendFile   = "file"
	LedgerBackendSQLite = "sqlite"
)

// Config is the persisted application configuration. The JSON field names
// match the config.json layout the dashboard edits, so both processes share
// one file (last writer wins, single-operator use).
type Config struct {
	// EmailProvider selects a provider preset ("gmail", "outlook",
	// "yahoo", "icloud") or "custom" for explicit IMAP settings.
	EmailProvider string `mapstructure:"email_provider" json:"email_provider"`

	// EmailUser is the mailbox account name.
	EmailUser string `mapstructure:"email_user" json:"email_user"`

	// EmailPassword is the app password for the account. Left empty when
	// the credential is stored in the system keyring instead.
	EmailPassword string `mapstructure:"email_password" json:"email_password"`

	// IMAPServer and IMAPPort apply only when EmailProvider is "custom".
	IMAPServer string `mapstructure:"imap_server" json:"imap_server,omitempty"`
	IMAPPort   int    `mapstructure:"imap_port" json:"imap_port,omitempty"`

	// DefaultFolder receives documents whose case has no mapping.
	DefaultFolder string `mapstructure:"default_folder" json:"default_folder"`

	// ProcessedFile is the ledger location (a flat text file, or the
	// SQLite database path when LedgerBackend is "sqlite").
	ProcessedFile string `mapstructure:"processed_file" json:"processed_file"`

	// LedgerBackend selects the ledger storage: "file" or "sqlite".
	LedgerBackend string `mapstructure:"ledger_backend" json:"ledger_backend"`

	// ActivityLog is the path of the bounded activity log the dashboard
	// displays.
	ActivityLog string `mapstructure:"activity_log" json:"activity_log"`

	// ListenAddr is the dashboard bind address.
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// WatchIntervalSec is the delay between runs in watch mode.
	WatchIntervalSec int `mapstructure:"watch_interval_sec" json:"watch_interval_sec"`

	// Cases maps a case number to its destination directory.
	Cases map[string]string `mapstructure:"cases" json:"cases"`
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/nefwatch/config.json.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.json")
	}
	return filepath.Join(home, ".config", "nefwatch", "config.json")
}

// defaultConfig returns the configuration used when no file exists yet.
func defaultConfig() *Config {
	return &Config{
		EmailProvider:    "gmail",
		DefaultFolder:    "~/Documents/Legal/_UNROUTED",
		ProcessedFile:    "~/.nefwatch-processed.txt",
		LedgerBackend:    LedgerBackendFile,
		ActivityLog:      "~/.config/nefwatch/activity.log",
		ListenAddr:       "localhost:5050",
		WatchIntervalSec: 300,
		Cases:            map[string]string{},
	}
}

// LoadConfig reads configuration from the given JSON file path using Viper.
// A missing file yields the default configuration rather than an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("email_provider", "gmail")
	v.SetDefault("default_folder", "~/Documents/Legal/_UNROUTED")
	v.SetDefault("processed_file", "~/.nefwatch-processed.txt")
	v.SetDefault("ledger_backend", LedgerBackendFile)
	v.SetDefault("activity_log", "~/.config/nefwatch/activity.log")
	v.SetDefault("listen_addr", "localhost:5050")
	v.SetDefault("watch_interval_sec", 300)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Cases == nil {
		cfg.Cases = map[string]string{}
	}

	return cfg, nil
}

// SaveConfig writes the configuration as JSON at path, creating parent
// directories if needed.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("email_provider", cfg.EmailProvider)
	v.Set("email_user", cfg.EmailUser)
	v.Set("email_password", cfg.EmailPassword)
	v.Set("imap_server", cfg.IMAPServer)
	v.Set("imap_port", cfg.IMAPPort)
	v.Set("default_folder", cfg.DefaultFolder)
	v.Set("processed_file", cfg.ProcessedFile)
	v.Set("ledger_backend", cfg.LedgerBackend)
	v.Set("activity_log", cfg.ActivityLog)
	v.Set("listen_addr", cfg.ListenAddr)
	v.Set("watch_interval_sec", cfg.WatchIntervalSec)
	v.Set("cases", cfg.Cases)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Validate reports the configuration errors that make a run impossible.
func (c *Config) Validate() error {
	if c.EmailUser == "" {
		return fmt.Errorf("email_user is not set")
	}
	if c.DefaultFolder == "" {
		return fmt.Errorf("default_folder is not set")
	}
	if c.ProcessedFile == "" {
		return fmt.Errorf("processed_file is not set")
	}
	if c.EmailProvider == "custom" && c.IMAPServer == "" {
		return fmt.Errorf("imap_server is required when email_provider is custom")
	}
	switch c.LedgerBackend {
	case "", LedgerBackendFile, LedgerBackendSQLite:
	default:
		return fmt.Errorf("unknown ledger_backend %q", c.LedgerBackend)
	}
	return nil
}

// ExpandHome expands a leading "~" or "~/" in path to the user's home
// directory, mirroring how paths are written in the config file.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
