// Package config loads chanbridge configuration from an optional TOML file and
// CHANBRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/sammck-go/chanbridge/pkg/logger"
	"github.com/sammck-go/chanbridge/pkg/wire"
)

// EnvPrefix prefixes every environment override, e.g. CHANBRIDGE_LOG_LEVEL=debug
const EnvPrefix = "CHANBRIDGE"

// Duration is a time.Duration that reads and writes as text such as "30s"
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config is the complete configuration of the chanbridge command
type Config struct {
	Log    logger.Config `mapstructure:"log" toml:"log"`
	Bridge BridgeConfig  `mapstructure:"bridge" toml:"bridge"`
	Server ServerConfig  `mapstructure:"server" toml:"server"`
	Client ClientConfig  `mapstructure:"client" toml:"client"`
}

// BridgeConfig holds options shared by both ends of a connection
type BridgeConfig struct {
	// Codec is the envelope codec: json, cbor or proto
	Codec string `mapstructure:"codec" toml:"codec"`

	// IdleTimeout releases sessions without traffic; zero disables it
	IdleTimeout Duration `mapstructure:"idle_timeout" toml:"idle_timeout"`
}

// ServerConfig configures "chanbridge serve"
type ServerConfig struct {
	Listen     string `mapstructure:"listen" toml:"listen"`
	Path       string `mapstructure:"path" toml:"path"`
	RequestLog bool   `mapstructure:"request_log" toml:"request_log"`
}

// ClientConfig configures "chanbridge dial"
type ClientConfig struct {
	URL              string   `mapstructure:"url" toml:"url"`
	MaxRetryCount    int      `mapstructure:"max_retry_count" toml:"max_retry_count"`
	MaxRetryInterval Duration `mapstructure:"max_retry_interval" toml:"max_retry_interval"`
	Timeout          Duration `mapstructure:"timeout" toml:"timeout"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Log: logger.DefaultConfig(),
		Bridge: BridgeConfig{
			Codec: wire.CodecJSON,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8080",
			Path:   "/chanbridge",
		},
		Client: ClientConfig{
			URL:              "ws://127.0.0.1:8080/chanbridge",
			MaxRetryCount:    5,
			MaxRetryInterval: Duration(30 * time.Second),
			Timeout:          Duration(10 * time.Second),
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.prefix", cfg.Log.Prefix)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("bridge.codec", cfg.Bridge.Codec)
	v.SetDefault("bridge.idle_timeout", cfg.Bridge.IdleTimeout.String())
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.path", cfg.Server.Path)
	v.SetDefault("server.request_log", cfg.Server.RequestLog)
	v.SetDefault("client.url", cfg.Client.URL)
	v.SetDefault("client.max_retry_count", cfg.Client.MaxRetryCount)
	v.SetDefault("client.max_retry_interval", cfg.Client.MaxRetryInterval.String())
	v.SetDefault("client.timeout", cfg.Client.Timeout.String())
}

// Load reads the configuration. If path is empty, chanbridge.toml is looked for in
// the working directory and in ~/.chanbridge, and a missing file is not an error.
// Environment variables override file values: CHANBRIDGE_ plus the upper-cased key
// with "." replaced by "_", e.g. CHANBRIDGE_BRIDGE_CODEC=cbor.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chanbridge")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".chanbridge"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later
func (c *Config) Validate() error {
	if _, err := logger.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if _, err := wire.Lookup(c.Bridge.Codec); err != nil {
		return fmt.Errorf("invalid bridge.codec: %w", err)
	}
	if c.Bridge.IdleTimeout < 0 {
		return fmt.Errorf("invalid bridge.idle_timeout: %s", c.Bridge.IdleTimeout)
	}
	if c.Client.MaxRetryCount < 0 {
		return fmt.Errorf("invalid client.max_retry_count: %d", c.Client.MaxRetryCount)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("invalid server.path: %q must start with /", c.Server.Path)
	}
	return nil
}

// TOML renders the configuration in the format Load reads
func (c *Config) TOML() (string, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
