package common

import (
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is drivemount's top-level configuration (spec §6.2's config.yaml):
// cache dir, log level, credentials file path, background refresh and
// upload retry intervals, and a switch that turns background refresh off.
// It is loaded with the same
// read-then-mergo.Merge-over-defaults shape as the teacher's
// cmd/common.LoadConfig.
type Config struct {
	CacheDir                 string        `yaml:"cacheDir"`
	LogLevel                 string        `yaml:"log"`
	CredentialsFile          string        `yaml:"credentialsFile"`
	RefreshInterval          time.Duration `yaml:"refreshInterval"`
	UploadRetryInterval      time.Duration `yaml:"uploadRetryInterval"`
	DisableBackgroundRefresh bool          `yaml:"disableBackgroundRefresh"`
}

// DefaultConfigPath returns ~/.drivefs/config.yaml (spec §6.2).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Error().Err(err).Msg("Could not determine home directory.")
	}
	return filepath.Join(home, ".drivefs", "config.yaml")
}

// DefaultAppDir returns ~/.drivefs, the parent of every file spec §6.2
// lists (token.json, types.yaml, credentials.json, config.yaml).
func DefaultAppDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Error().Err(err).Msg("Could not determine home directory.")
	}
	return filepath.Join(home, ".drivefs")
}

func defaultConfig() Config {
	appDir := DefaultAppDir()
	xdgCacheDir, err := os.UserCacheDir()
	if err != nil {
		xdgCacheDir = os.TempDir()
	}
	return Config{
		CacheDir:            filepath.Join(xdgCacheDir, "drivefs"),
		LogLevel:            "info",
		CredentialsFile:     filepath.Join(appDir, "credentials.json"),
		RefreshInterval:     30 * time.Second,
		UploadRetryInterval: 15 * time.Second,
	}
}

// LoadConfig reads path and merges it over built-in defaults, the same
// layering the teacher's cmd/common.LoadConfig uses: a missing or
// unparseable file logs a warning and falls back to defaults rather than
// aborting, since the config file is convenience, not a hard requirement
// (only credentials.json and a reachable remote are, per spec §6.1).
func LoadConfig(path string) *Config {
	defaults := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Configuration file not found, using defaults.")
		return &defaults
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Could not parse configuration file, using defaults.")
		return &defaults
	}
	if err := mergo.Merge(config, defaults); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Could not merge configuration file with defaults, using defaults only.")
	}
	return config
}

// WriteConfig persists c to path, creating its parent directory if needed.
func (c Config) WriteConfig(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}
