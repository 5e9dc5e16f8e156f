// Package config provides configuration loading for the homeai CLI.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LocalBaseURL is the API used when no base URL is configured and the client
// runs on a local host.
const LocalBaseURL = "http://localhost:8000"

// Config holds all configuration for the CLI.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Session   SessionConfig   `mapstructure:"session"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Poll      PollConfig      `mapstructure:"poll"`
	Log       LogConfig       `mapstructure:"log"`
	DevServer DevServerConfig `mapstructure:"dev_server"`
}

// APIConfig holds backend connection settings.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Host is the host the client runs on. A local host enables the
	// LocalBaseURL fallback.
	Host    string        `mapstructure:"host"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// SessionConfig holds login settings.
type SessionConfig struct {
	UserID   string        `mapstructure:"user_id"`
	Platform string        `mapstructure:"platform" validate:"oneof=web ios android"`
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"gte=1h"`
}

// StoreConfig selects where the access token is persisted between runs.
type StoreConfig struct {
	Kind string `mapstructure:"kind" validate:"oneof=file redis none"`
	Path string `mapstructure:"path"`
}

// RedisConfig holds Redis configuration for the redis token store.
type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// PollConfig holds render polling settings.
type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug  bool   `mapstructure:"debug"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// DevServerConfig holds settings of the local fake API server.
type DevServerConfig struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// New returns a viper instance with defaults, config search paths and
// HOMEAI_ environment overrides set up. Callers bind their flags to it
// before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("homeai")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".homeai"))
	}

	v.SetEnvPrefix("HOMEAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// DEBUG=true is honored alongside HOMEAI_LOG_DEBUG.
	_ = v.BindEnv("log.debug", "HOMEAI_LOG_DEBUG", "DEBUG")

	return v
}

// Load reads the config file (optional), then unmarshals and validates the
// merged configuration. A file set with v.SetConfigFile must exist.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.API.BaseURL = ResolveBaseURL(cfg.API.BaseURL, cfg.API.Host)
	cfg.Session.Platform = strings.ToLower(strings.TrimSpace(cfg.Session.Platform))
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks enumerated and bounded settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: %q fails %s %s", strings.ToLower(fe.Namespace()), fmt.Sprint(fe.Value()), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ResolveBaseURL picks the API base URL: an explicit value wins, otherwise a
// local host falls back to LocalBaseURL, otherwise the result is empty.
// Trailing slashes are trimmed.
func ResolveBaseURL(explicit, host string) string {
	if explicit = strings.TrimRight(strings.TrimSpace(explicit), "/"); explicit != "" {
		return explicit
	}
	if IsLocalHost(host) {
		return LocalBaseURL
	}
	return ""
}

// IsLocalHost reports whether host names the local machine.
func IsLocalHost(host string) bool {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".homeai", "session.json")
	}
	return filepath.Join(home, ".homeai", "session.json")
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.host", "localhost")
	v.SetDefault("api.timeout", "30s")

	// Session defaults
	v.SetDefault("session.user_id", "")
	v.SetDefault("session.platform", "web")
	v.SetDefault("session.token_ttl", "720h") // 30 days

	// Store defaults
	v.SetDefault("store.kind", "file")
	v.SetDefault("store.path", "")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "homeai:session:")
	v.SetDefault("redis.ttl", "720h")

	// Poll defaults
	v.SetDefault("poll.interval", "2s")
	v.SetDefault("poll.max_attempts", 8)

	// Log defaults
	v.SetDefault("log.debug", false)
	v.SetDefault("log.format", "text")

	// Dev server defaults
	v.SetDefault("dev_server.addr", "127.0.0.1:8000")
	v.SetDefault("dev_server.jwt_secret", "homeai-dev-secret")
}
