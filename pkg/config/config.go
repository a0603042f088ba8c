package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for rpsuite. It is passed explicitly to every
// component constructor; nothing in the engine reads process-wide state.
type Config struct {
	Home       string      `mapstructure:"home"`
	ReportsDir string      `mapstructure:"reports_dir"`
	PacksDir   string      `mapstructure:"packs_dir"`
	PresetsDir string      `mapstructure:"presets_dir"`
	LogsDir    string      `mapstructure:"logs_dir"`
	LedgerPath string      `mapstructure:"ledger_path"`
	LogLevel   string      `mapstructure:"log_level"`
	DryRun     bool        `mapstructure:"dry_run"`
	Match      MatchConfig `mapstructure:"match"`
}

// MatchConfig holds the default similarity settings used when a pack entry
// does not carry its own.
type MatchConfig struct {
	Strategy  string  `mapstructure:"strategy"`
	Threshold float64 `mapstructure:"threshold"`
}

const (
	// EnvPrefix is the prefix for environment overrides (RPS_HOME, RPS_MATCH_THRESHOLD, ...).
	EnvPrefix = "RPS"
	// FileName is the config file base name searched for in the config paths.
	FileName = "rpsuite"
)

var defaultMatch = MatchConfig{Strategy: "token", Threshold: 0.6}

// Options tweak LoadConfig. Zero value loads from the usual search paths.
type Options struct {
	// Home overrides RPS_HOME and the ~/.rps default.
	Home string
	// File loads exactly this config file instead of searching.
	File string
}

// LoadConfig loads configuration from defaults, an optional config file and
// RPS_* environment variables, in increasing precedence.
func LoadConfig(opts Options) (*Config, error) {
	home := opts.Home
	if home == "" {
		h, err := GetHome()
		if err != nil {
			return nil, err
		}
		home = h
	}

	v := viper.New()
	v.SetDefault("home", home)
	v.SetDefault("reports_dir", filepath.Join(home, "reports"))
	v.SetDefault("packs_dir", filepath.Join(home, "packs"))
	v.SetDefault("presets_dir", filepath.Join(home, "presets"))
	v.SetDefault("logs_dir", filepath.Join(home, "logs"))
	v.SetDefault("ledger_path", filepath.Join(home, "ledger.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("dry_run", false)
	v.SetDefault("match.strategy", defaultMatch.Strategy)
	v.SetDefault("match.threshold", defaultMatch.Threshold)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if opts.Home != "" {
		v.Set("home", opts.Home)
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(filepath.Join(home, "config"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration rooted at home without consulting files or
// the environment. Tests and embedders use it to run isolated instances.
func Default(home string) *Config {
	return &Config{
		Home:       home,
		ReportsDir: filepath.Join(home, "reports"),
		PacksDir:   filepath.Join(home, "packs"),
		PresetsDir: filepath.Join(home, "presets"),
		LogsDir:    filepath.Join(home, "logs"),
		LedgerPath: filepath.Join(home, "ledger.db"),
		LogLevel:   "info",
		Match:      defaultMatch,
	}
}

// Validate checks the settings that are cheap to get wrong in a config file.
// Strategy names are validated by the matcher itself.
func (c *Config) Validate() error {
	if c.Match.Threshold < 0 || c.Match.Threshold > 1 {
		return fmt.Errorf("match.threshold must be within [0,1], got %v", c.Match.Threshold)
	}
	if strings.TrimSpace(c.Home) == "" {
		return fmt.Errorf("home directory must not be empty")
	}
	return nil
}

// EnsureDirectories creates the home tree used by reports, packs, presets and logs.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Home, c.ReportsDir, c.PacksDir, c.PresetsDir, c.LogsDir, filepath.Dir(c.LedgerPath)}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetHome returns the rpsuite home directory: RPS_HOME, else ~/.rps.
func GetHome() (string, error) {
	if home := os.Getenv("RPS_HOME"); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".rps"), nil
}
