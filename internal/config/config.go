package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "RELOAD"

// PortEnv names the environment variable that points a process at an existing hub.
const PortEnv = envPrefix + "_ORCHESTRATION_PORT"

type Config struct {
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Reload        ReloadConfig        `mapstructure:"reload"`
	Watch         WatchConfig         `mapstructure:"watch"`
	Observe       ObserveConfig       `mapstructure:"observe"`
	Log           LogConfig           `mapstructure:"log"`
}

// OrchestrationConfig locates the hub. Port 0 means this process becomes the hub.
type OrchestrationConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ReloadConfig controls the application-side coordinator.
type ReloadConfig struct {
	Extension      string `mapstructure:"extension"`
	Command        string `mapstructure:"command"`
	RetryOnConnect bool   `mapstructure:"retry_on_connect"`
}

// WatchConfig controls the build-side change detector.
type WatchConfig struct {
	Dir           string        `mapstructure:"dir"`
	Pattern       string        `mapstructure:"pattern"`
	Ignore        []string      `mapstructure:"ignore"`
	Debounce      time.Duration `mapstructure:"debounce"`
	ResultTimeout time.Duration `mapstructure:"result_timeout"`
}

// ObserveConfig controls the diagnostics observer.
type ObserveConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

var defaultConfig = Config{
	Orchestration: OrchestrationConfig{
		Host: "127.0.0.1",
		Port: 0,
	},
	Reload: ReloadConfig{
		Extension: ".class",
	},
	Watch: WatchConfig{
		Dir:      ".",
		Pattern:  "**/*.class",
		Ignore:   []string{},
		Debounce: 300 * time.Millisecond,
	},
}

// NewViper returns a viper instance with defaults and environment binding in
// place; callers bind their flags on top of it.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestration.host", defaultConfig.Orchestration.Host)
	v.SetDefault("orchestration.port", defaultConfig.Orchestration.Port)

	v.SetDefault("reload.extension", defaultConfig.Reload.Extension)
	v.SetDefault("reload.command", defaultConfig.Reload.Command)
	v.SetDefault("reload.retry_on_connect", defaultConfig.Reload.RetryOnConnect)

	v.SetDefault("watch.dir", defaultConfig.Watch.Dir)
	v.SetDefault("watch.pattern", defaultConfig.Watch.Pattern)
	v.SetDefault("watch.ignore", defaultConfig.Watch.Ignore)
	v.SetDefault("watch.debounce", defaultConfig.Watch.Debounce)
	v.SetDefault("watch.result_timeout", defaultConfig.Watch.ResultTimeout)

	v.SetDefault("observe.http_addr", defaultConfig.Observe.HTTPAddr)

	v.SetDefault("log.debug", defaultConfig.Log.Debug)
}

// Load reads the optional config file and decodes the merged settings.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c OrchestrationConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

func (c ReloadConfig) Validate() error {
	if !strings.HasPrefix(c.Extension, ".") {
		return fmt.Errorf("extension %q must start with a dot", c.Extension)
	}
	return nil
}

func (c WatchConfig) Validate() error {
	if c.Dir == "" {
		return errors.New("dir is required")
	}
	if !doublestar.ValidatePattern(c.Pattern) {
		return fmt.Errorf("invalid pattern %q", c.Pattern)
	}
	for _, pattern := range c.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	if c.Debounce < 0 {
		return errors.New("debounce must be >= 0")
	}
	if c.ResultTimeout < 0 {
		return errors.New("result_timeout must be >= 0")
	}
	return nil
}

// Validate returns the first invalid section.
func (c *Config) Validate() error {
	if err := c.Orchestration.Validate(); err != nil {
		return fmt.Errorf("orchestration: %w", err)
	}
	if err := c.Reload.Validate(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
