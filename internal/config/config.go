// Package config loads regdetect configuration from a YAML file, optional
// .env files and REGDETECT_* environment variables, then applies defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level regdetect configuration.
type Config struct {
	Scanner      ScannerConfig   `yaml:"scanner"`
	Lifecycle    LifecycleConfig `yaml:"lifecycle"`
	Adaptive     AdaptiveConfig  `yaml:"adaptive"`
	Store        StoreConfig     `yaml:"store"`
	Transport    TransportConfig `yaml:"transport"`
	Browser      BrowserConfig   `yaml:"browser"`
	TaxonomyFile string          `yaml:"taxonomy_file"`
	LogLevel     string          `yaml:"log_level"` // debug | info | warn | error
}

// ScannerConfig bounds and extends field scanning.
type ScannerConfig struct {
	Budget         time.Duration       `yaml:"budget"`
	ExtraSelectors map[string][]string `yaml:"extra_selectors"` // jurisdiction -> CSS selectors
}

// LifecycleConfig controls when detection passes run.
type LifecycleConfig struct {
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxAttempts      int           `yaml:"max_attempts"`
	LoadDelay        time.Duration `yaml:"load_delay"`
	MutationWindow   time.Duration `yaml:"mutation_window"`
	MutationBurst    int           `yaml:"mutation_burst"`
	NavigationSettle time.Duration `yaml:"navigation_settle"`
	PassTimeout      time.Duration `yaml:"pass_timeout"`
	DeliveryTimeout  time.Duration `yaml:"delivery_timeout"`
}

// AdaptiveConfig controls the history feedback loop.
type AdaptiveConfig struct {
	Mode       string `yaml:"mode"` // store | off
	MaxRecords int    `yaml:"max_records"`
	Key        string `yaml:"key"`
	AutoRecord bool   `yaml:"auto_record"` // record every successful pass, not only confirmations
}

// StoreConfig selects the key-value medium behind the adaptive history.
type StoreConfig struct {
	Driver        string `yaml:"driver"` // memory | sqlite | redis
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

// TransportConfig lists result sinks and the optional HTTP command surface.
type TransportConfig struct {
	Sinks  []SinkConfig `yaml:"sinks"`
	Listen string       `yaml:"listen"`
}

// SinkConfig defines one output backend.
type SinkConfig struct {
	Type       string        `yaml:"type"` // stdout | webhook
	URL        string        `yaml:"url"`  // for webhook
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BrowserConfig controls the Chrome host.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	Headful          bool          `yaml:"headful"`
	NoStealth        bool          `yaml:"no_stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	ViewportWidth    int           `yaml:"viewport_width"`
	ViewportHeight   int           `yaml:"viewport_height"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads .env files (missing ones are ignored), the YAML file at
// path (skipped when path is empty), applies REGDETECT_* overrides and
// defaults, then validates.
func LoadFile(path string, envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return load(data, os.Getenv)
}

// Load parses YAML data with environment overrides and defaults.
func Load(data []byte) (*Config, error) {
	return load(data, os.Getenv)
}

func load(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("REGDETECT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("REGDETECT_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := getenv("REGDETECT_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("REGDETECT_REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := getenv("REGDETECT_REDIS_PASSWORD"); v != "" {
		c.Store.RedisPassword = v
	}
	if v := getenv("REGDETECT_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: REGDETECT_REDIS_DB: %w", err)
		}
		c.Store.RedisDB = n
	}
	if v := getenv("REGDETECT_ADAPTIVE_MODE"); v != "" {
		c.Adaptive.Mode = v
	}
	if v := getenv("REGDETECT_WEBHOOK_URL"); v != "" {
		c.Transport.Sinks = append(c.Transport.Sinks, SinkConfig{Type: "webhook", URL: v})
	}
	if v := getenv("REGDETECT_BROWSER_REMOTE"); v != "" {
		c.Browser.Remote = v
	}
	if v := getenv("REGDETECT_LISTEN"); v != "" {
		c.Transport.Listen = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Scanner.Budget <= 0 {
		c.Scanner.Budget = 2500 * time.Millisecond
	}
	if c.Lifecycle.BaseDelay <= 0 {
		c.Lifecycle.BaseDelay = time.Second
	}
	if c.Lifecycle.MaxAttempts <= 0 {
		c.Lifecycle.MaxAttempts = 5
	}
	if c.Lifecycle.LoadDelay <= 0 {
		c.Lifecycle.LoadDelay = 2500 * time.Millisecond
	}
	if c.Lifecycle.MutationWindow <= 0 {
		c.Lifecycle.MutationWindow = 500 * time.Millisecond
	}
	if c.Lifecycle.MutationBurst <= 0 {
		c.Lifecycle.MutationBurst = 50
	}
	if c.Lifecycle.NavigationSettle <= 0 {
		c.Lifecycle.NavigationSettle = 500 * time.Millisecond
	}
	if c.Lifecycle.PassTimeout <= 0 {
		c.Lifecycle.PassTimeout = 10 * time.Second
	}
	if c.Lifecycle.DeliveryTimeout <= 0 {
		c.Lifecycle.DeliveryTimeout = 30 * time.Second
	}
	if c.Adaptive.Mode == "" {
		c.Adaptive.Mode = "store"
	}
	if c.Adaptive.MaxRecords <= 0 {
		c.Adaptive.MaxRecords = 100
	}
	if c.Adaptive.Key == "" {
		c.Adaptive.Key = "regdetect:adaptive_history"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = "regdetect.db"
	}
	if c.Store.Driver == "redis" && c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if len(c.Transport.Sinks) == 0 {
		c.Transport.Sinks = []SinkConfig{{Type: "stdout"}}
	}
	for i := range c.Transport.Sinks {
		s := &c.Transport.Sinks[i]
		if s.Type == "webhook" && s.MaxRetries <= 0 {
			s.MaxRetries = 3
		}
		if s.Timeout <= 0 {
			s.Timeout = 10 * time.Second
		}
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 2000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("config: store.driver %q: want memory, sqlite or redis", c.Store.Driver)
	}
	switch c.Adaptive.Mode {
	case "store", "off":
	default:
		return fmt.Errorf("config: adaptive.mode %q: want store or off", c.Adaptive.Mode)
	}
	if c.Adaptive.MaxRecords > 100 {
		return fmt.Errorf("config: adaptive.max_records %d: at most 100", c.Adaptive.MaxRecords)
	}
	for i, s := range c.Transport.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: transport.sinks[%d]: webhook without url", i)
			}
		default:
			return fmt.Errorf("config: transport.sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}
