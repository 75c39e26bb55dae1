// Package config loads zenguard's YAML configuration.
//
// Every field has a default; a config file only needs the keys it changes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "ZENGUARD_CONFIG"

// DefaultFileName is looked up in the data dir when no path is given.
const DefaultFileName = "config.yaml"

// EngineConfig tunes the decision engine.
type EngineConfig struct {
	Debounce         time.Duration `yaml:"debounce"`
	SoftGrantMinutes int           `yaml:"soft_grant_minutes"`
	SoftHold         time.Duration `yaml:"soft_hold"`
	SettingsApp      string        `yaml:"settings_app"`
	SensitiveWindows []string      `yaml:"sensitive_windows"`
}

// WatchdogConfig tunes the supervisory loop.
type WatchdogConfig struct {
	Interval  time.Duration `yaml:"interval"`
	StaleLock time.Duration `yaml:"stale_lock"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// GuardianConfig tunes the process that restarts a dead supervisor.
type GuardianConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	RestartEvery  time.Duration `yaml:"restart_every"`
	RestartBurst  int           `yaml:"restart_burst"`
}

// IgnoreConfig adds identifiers to the built-in ignore list.
type IgnoreConfig struct {
	Extra []string `yaml:"extra"`
}

// Config is the full zenguard configuration.
type Config struct {
	DataDir       string         `yaml:"data_dir"`
	LogDir        string         `yaml:"log_dir"`
	Events        string         `yaml:"events"`
	FrictionLevel string         `yaml:"friction_level"`
	SelfID        string         `yaml:"self_id"`
	Engine        EngineConfig   `yaml:"engine"`
	Watchdog      WatchdogConfig `yaml:"watchdog"`
	Guardian      GuardianConfig `yaml:"guardian"`
	Ignore        IgnoreConfig   `yaml:"ignore"`

	// path is the file this config was read from, empty for pure defaults.
	path string
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	dataDir := defaultDataDir()
	return Config{
		DataDir:       dataDir,
		LogDir:        filepath.Join(dataDir, "logs"),
		Events:        filepath.Join(dataDir, "events.fifo"),
		FrictionLevel: string(domain.DefaultFrictionLevel),
		SelfID:        "com.zendroid.launcher",
		Engine: EngineConfig{
			Debounce:         200 * time.Millisecond,
			SoftGrantMinutes: 15,
			SoftHold:         3 * time.Second,
			SettingsApp:      "com.android.settings",
			SensitiveWindows: []string{"Accessibility", "AppInfo"},
		},
		Watchdog: WatchdogConfig{
			Interval:  30 * time.Second,
			StaleLock: 60 * time.Second,
			Heartbeat: 30 * time.Second,
		},
		Guardian: GuardianConfig{
			CheckInterval: 30 * time.Second,
			RestartEvery:  10 * time.Second,
			RestartBurst:  3,
		},
	}
}

// Path returns the file the config was loaded from.
func (c Config) Path() string {
	return c.path
}

// Level returns the configured friction level, HIGH when unset or invalid.
func (c Config) Level() domain.FrictionLevel {
	return domain.ParseFrictionLevel(c.FrictionLevel)
}

// ResolvePath picks the config file: explicit path, then $ZENGUARD_CONFIG,
// then config.yaml in the default data dir.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return filepath.Join(defaultDataDir(), DefaultFileName)
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.path = path
	cfg.normalize()
	return cfg, nil
}

// Save writes the config as YAML, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// normalize restores defaults for values a file zeroed or broke.
func (c *Config) normalize() {
	def := DefaultConfig()

	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.DataDir, "logs")
	}
	if c.Events == "" {
		c.Events = filepath.Join(c.DataDir, "events.fifo")
	}
	c.FrictionLevel = string(domain.ParseFrictionLevel(c.FrictionLevel))
	if c.SelfID == "" {
		c.SelfID = def.SelfID
	}

	if c.Engine.Debounce <= 0 {
		c.Engine.Debounce = def.Engine.Debounce
	}
	if c.Engine.SoftGrantMinutes <= 0 {
		c.Engine.SoftGrantMinutes = def.Engine.SoftGrantMinutes
	}
	if c.Engine.SoftHold <= 0 {
		c.Engine.SoftHold = def.Engine.SoftHold
	}
	if c.Engine.SettingsApp == "" {
		c.Engine.SettingsApp = def.Engine.SettingsApp
	}
	if len(c.Engine.SensitiveWindows) == 0 {
		c.Engine.SensitiveWindows = def.Engine.SensitiveWindows
	}

	if c.Watchdog.Interval <= 0 {
		c.Watchdog.Interval = def.Watchdog.Interval
	}
	if c.Watchdog.StaleLock <= 0 {
		c.Watchdog.StaleLock = def.Watchdog.StaleLock
	}
	if c.Watchdog.Heartbeat <= 0 {
		c.Watchdog.Heartbeat = def.Watchdog.Heartbeat
	}

	if c.Guardian.CheckInterval <= 0 {
		c.Guardian.CheckInterval = def.Guardian.CheckInterval
	}
	if c.Guardian.RestartEvery <= 0 {
		c.Guardian.RestartEvery = def.Guardian.RestartEvery
	}
	if c.Guardian.RestartBurst <= 0 {
		c.Guardian.RestartBurst = def.Guardian.RestartBurst
	}
}

func defaultDataDir() string {
	if os.Geteuid() == 0 {
		return "/var/lib/zenguard"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "zenguard")
	}
	return filepath.Join(home, ".zenguard")
}
