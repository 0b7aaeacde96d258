package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

const envPrefix = "ZAPIC"

// Config holds all host configuration.
type Config struct {
	Page         PageConfig         `toml:"page"`
	Fetch        FetchConfig        `toml:"fetch"`
	Cache        CacheConfig        `toml:"cache"`
	Bridge       BridgeConfig       `toml:"bridge"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Debug        DebugConfig        `toml:"debug"`
	Logging      LogConfig          `toml:"logging"`
}

// PageConfig identifies the hosted web app and the values exposed to it.
type PageConfig struct {
	URL         string `split_words:"true" default:"https://app.zapic.net" toml:"url"`
	Environment string `split_words:"true" default:"webview" toml:"environment"`
	Version     string `split_words:"true" default:"1.3.0" toml:"version"`
	PackageName string `split_words:"true" default:"com.zapic.host" toml:"package_name"`
}

// Duration fields carry toml:"-" because go-toml cannot decode "10s" into a
// time.Duration; LoadFile reads them through fileDurations instead.

// FetchConfig holds page download settings.
type FetchConfig struct {
	ConnectTimeout time.Duration `split_words:"true" default:"10s" toml:"-"`
	ReadTimeout    time.Duration `split_words:"true" default:"10s" toml:"-"`
	StaleThreshold int           `split_words:"true" default:"2" toml:"stale_threshold"`
	Workers        int           `split_words:"true" default:"4" toml:"workers"`
}

// CacheConfig holds on-disk cache settings.
type CacheConfig struct {
	Dir string `split_words:"true" toml:"dir"`
}

// BridgeConfig holds message bridge settings.
type BridgeConfig struct {
	Debounce      time.Duration `split_words:"true" default:"20ms" toml:"-"`
	QueueCapacity int           `split_words:"true" default:"1000" toml:"queue_capacity"`
	EvalTimeout   time.Duration `split_words:"true" default:"5s" toml:"-"`
}

// ConnectivityConfig holds network probe settings.
type ConnectivityConfig struct {
	Enabled  bool          `split_words:"true" default:"true" toml:"enabled"`
	ProbeURL string        `split_words:"true" toml:"probe_url"`
	Interval time.Duration `split_words:"true" default:"15s" toml:"-"`
}

// DebugConfig holds debug server settings.
type DebugConfig struct {
	Enabled          bool   `split_words:"true" default:"false" toml:"enabled"`
	Addr             string `split_words:"true" default:"127.0.0.1:8089" toml:"addr"`
	RateLimitRPS     int    `split_words:"true" default:"50" toml:"rate_limit_rps"`
	RateLimitBurst   int    `split_words:"true" default:"100" toml:"rate_limit_burst"`
	RateLimitEnabled bool   `split_words:"true" default:"true" toml:"rate_limit_enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `split_words:"true" default:"info" toml:"level"`
	Development bool   `split_words:"true" default:"false" toml:"development"`
}

// Load loads configuration from ZAPIC_* environment variables.
func Load() (*Config, error) {
	cfg, err := loadEnv()
	if err != nil {
		return nil, err
	}
	cfg.applyDerived()
	return cfg, nil
}

// LoadFile loads environment configuration and overlays the TOML file at
// path on top of it. Keys absent from the file keep their env/default value.
func LoadFile(path string) (*Config, error) {
	cfg, err := loadEnv()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	var durations fileDurations
	if err := toml.Unmarshal(data, &durations); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	durations.apply(cfg)
	cfg.applyDerived()
	return cfg, nil
}

func loadEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Page: PageConfig{
			URL:         "https://app.zapic.net",
			Environment: "webview",
			Version:     "1.3.0",
			PackageName: "com.zapic.host",
		},
		Fetch: FetchConfig{
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    10 * time.Second,
			StaleThreshold: 2,
			Workers:        4,
		},
		Bridge: BridgeConfig{
			Debounce:      20 * time.Millisecond,
			QueueCapacity: 1000,
			EvalTimeout:   5 * time.Second,
		},
		Connectivity: ConnectivityConfig{
			Enabled:  true,
			Interval: 15 * time.Second,
		},
		Debug: DebugConfig{
			Enabled:          false,
			Addr:             "127.0.0.1:8089",
			RateLimitRPS:     50,
			RateLimitBurst:   100,
			RateLimitEnabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
	cfg.applyDerived()
	return cfg
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	if c.Page.URL == "" {
		return fmt.Errorf("page url is required")
	}
	if c.Bridge.QueueCapacity <= 0 {
		return fmt.Errorf("bridge queue capacity must be positive, got %d", c.Bridge.QueueCapacity)
	}
	if c.Fetch.StaleThreshold < 0 {
		return fmt.Errorf("fetch stale threshold cannot be negative, got %d", c.Fetch.StaleThreshold)
	}
	return nil
}

// applyDerived fills values computed from other settings.
func (c *Config) applyDerived() {
	if c.Cache.Dir == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.Cache.Dir = dir
		} else {
			c.Cache.Dir = os.TempDir()
		}
	}
	if c.Connectivity.ProbeURL == "" {
		c.Connectivity.ProbeURL = c.Page.URL
	}
	if c.Fetch.Workers <= 0 {
		c.Fetch.Workers = 4
	}
}

// WatchdogTimeout is how long the injected bootstrap waits for the web app to
// call onLoaded before reporting a failed start.
func (c *Config) WatchdogTimeout() time.Duration {
	return c.Fetch.ConnectTimeout
}
