package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the server. Values are read by viper
// from an optional yaml file, overridden by environment variables.
type Config struct {
	ServerAddr     string        `mapstructure:"SERVER_ADDR"`
	DatabaseDSN    string        `mapstructure:"DATABASE_DSN"`
	SigningSecret  string        `mapstructure:"SIGNING_SECRET"`
	TokenExpiry    time.Duration `mapstructure:"TOKEN_EXPIRY"`
	AllowedOrigins []string      `mapstructure:"ALLOWED_ORIGINS"`
	Redis          RedisConfig   `mapstructure:"REDIS"`

	// SigningKey is the decoded SigningSecret, populated by Load.
	SigningKey []byte `mapstructure:"-"`
}

// RedisConfig configures the optional Redis backend for connector token
// storage. An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
}

// Load reads configuration from the file at path (optional) and the
// environment, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_ADDR", "localhost:8000")
	v.SetDefault("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=termchat sslmode=disable")
	v.SetDefault("TOKEN_EXPIRY", 24*time.Hour)
	v.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	v.SetDefault("REDIS.ADDR", "")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("TERMCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	key, err := decodeSigningSecret(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	cfg.SigningKey = key

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}

	return nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}
