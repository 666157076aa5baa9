// Package config loads the agent configuration from TOML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/validation"
)

const (
	defaultConfigPath = "~/.config/safetrip/offline.toml"
	defaultDataDir    = "~/.local/share/safetrip"
	defaultBaseURL    = "http://localhost:3000"
	defaultListen     = "127.0.0.1:7489"
)

// Environment overrides.
const (
	EnvAPIURL   = "SAFETRIP_API_URL"
	EnvAPIToken = "SAFETRIP_API_TOKEN"
	EnvDataDir  = "SAFETRIP_DATA_DIR"
	EnvLogLevel = "SAFETRIP_LOG_LEVEL"
)

// Duration decodes TOML strings such as "1.5s" or "1m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full agent configuration.
type Config struct {
	API          APIConfig          `toml:"api"`
	Queue        QueueConfig        `toml:"queue"`
	Storage      StorageConfig      `toml:"storage"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
	Replay       ReplayConfig       `toml:"replay"`
	Server       ServerConfig       `toml:"server"`
	Log          LogConfig          `toml:"log"`
}

type APIConfig struct {
	BaseURL string   `toml:"base_url" validate:"required,url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
}

type QueueConfig struct {
	StorageKey  string   `toml:"storage_key" validate:"required"`
	MaxRetries  int      `toml:"max_retries" validate:"min=1"`
	GracePeriod Duration `toml:"grace_period"`
	MaxSize     int      `toml:"max_size" validate:"min=0"`
}

type StorageConfig struct {
	Driver        string `toml:"driver" validate:"oneof=sqlite pebble memory"`
	DataDir       string `toml:"data_dir"`
	EncryptionKey string `toml:"encryption_key"`
}

type ConnectivityConfig struct {
	ProbeInterval    Duration `toml:"probe_interval"`
	FailureThreshold int      `toml:"failure_threshold" validate:"min=1"`
	// Probe disables the /health watcher when false; state then comes only
	// from PUT /api/connectivity.
	Probe bool `toml:"probe"`
}

type SchedulerConfig struct {
	QueueInterval Duration `toml:"queue_interval"`
}

type ReplayConfig struct {
	Mode string `toml:"mode" validate:"oneof=direct relay"`
}

type ServerConfig struct {
	Listen string `toml:"listen" validate:"required,hostname_port"`
}

type LogConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn warning error"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: defaultBaseURL,
			Timeout: Duration{10 * time.Second},
		},
		Queue: QueueConfig{
			StorageKey:  "offline-queue",
			MaxRetries:  3,
			GracePeriod: Duration{1500 * time.Millisecond},
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: mustExpand(defaultDataDir),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval:    Duration{10 * time.Second},
			FailureThreshold: 2,
			Probe:            true,
		},
		Scheduler: SchedulerConfig{
			QueueInterval: Duration{time.Minute},
		},
		Replay: ReplayConfig{Mode: "direct"},
		Server: ServerConfig{Listen: defaultListen},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads path (or the default location), falling back to defaults when
// the file is missing, then applies environment overrides and validates.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := lookupEnv(EnvAPIURL); ok {
		c.API.BaseURL = v
	}
	if v, ok := lookupEnv(EnvAPIToken); ok {
		c.API.Token = v
	}
	if v, ok := lookupEnv(EnvDataDir); ok {
		c.Storage.DataDir = v
	}
	if v, ok := lookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (c *Config) normalize() error {
	defaults := Default()

	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Timeout.Duration <= 0 {
		c.API.Timeout = defaults.API.Timeout
	}

	c.Queue.StorageKey = strings.TrimSpace(c.Queue.StorageKey)
	if c.Queue.StorageKey == "" {
		c.Queue.StorageKey = defaults.Queue.StorageKey
	}
	// Zero removes synced entries at once; an unset field keeps the default.
	if c.Queue.GracePeriod.Duration < 0 {
		return fmt.Errorf("queue.grace_period must not be negative")
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	dir := strings.TrimSpace(c.Storage.DataDir)
	if dir == "" {
		dir = defaultDataDir
	}
	expanded, err := expandPath(dir)
	if err != nil {
		return fmt.Errorf("storage.data_dir: %w", err)
	}
	c.Storage.DataDir = expanded

	if c.Connectivity.ProbeInterval.Duration <= 0 {
		c.Connectivity.ProbeInterval = defaults.Connectivity.ProbeInterval
	}
	if c.Scheduler.QueueInterval.Duration <= 0 {
		c.Scheduler.QueueInterval = defaults.Scheduler.QueueInterval
	}

	c.Replay.Mode = strings.ToLower(strings.TrimSpace(c.Replay.Mode))
	if c.Replay.Mode == "" {
		c.Replay.Mode = defaults.Replay.Mode
	}
	c.Server.Listen = strings.TrimSpace(c.Server.Listen)
	if c.Server.Listen == "" {
		c.Server.Listen = defaults.Server.Listen
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	return nil
}

// Validate checks field ranges and enumerations.
func (c Config) Validate() error {
	if err := validation.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Path returns the resolved config location for path.
func Path(path string) (string, error) {
	return resolvePath(path)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
