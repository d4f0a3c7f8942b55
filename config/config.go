package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all runtime configuration. Tags use mapstructure for
// Viper unmarshalling; every key can also be supplied as an environment
// variable of the same name.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	// Storage backend: "mongo" or "memory".
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDBName    string `mapstructure:"MONGO_DB_NAME"`

	// Entity cache backend: "memory" or "redis".
	CacheBackend string `mapstructure:"CACHE_BACKEND"`
	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	CacheTTLMin  int    `mapstructure:"CACHE_TTL_MIN"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// PolicyEnforce guards destructive registry endpoints behind the
	// static policy table when true.
	PolicyEnforce   bool   `mapstructure:"POLICY_ENFORCE"`
	PolicyAdminRole string `mapstructure:"POLICY_ADMIN_ROLE"`

	// Token issuance.
	TokenTTLMin       int    `mapstructure:"TOKEN_TTL_MIN"`
	TokenFormat       string `mapstructure:"TOKEN_FORMAT"` // "uuid" or "jwt"
	TokenSigningKey   string `mapstructure:"TOKEN_SIGNING_KEY"`
	TokenIssuer       string `mapstructure:"TOKEN_ISSUER"`
	TokenSweepSeconds int    `mapstructure:"TOKEN_SWEEP_SECONDS"`
}

// TokenTTL returns the process-wide default token lifetime.
func (c *ServerConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMin) * time.Minute
}

// CacheTTL returns the entity cache entry lifetime.
func (c *ServerConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMin) * time.Minute
}

// SweepInterval returns the period of the expired-token reclamation sweep.
func (c *ServerConfig) SweepInterval() time.Duration {
	return time.Duration(c.TokenSweepSeconds) * time.Second
}

// LoadConfig reads configuration from an optional config file, environment
// variables and defaults, in that order of precedence.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/accord/")
	v.AddConfigPath("$HOME/.accord")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("STORAGE_BACKEND", "mongo")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/accord_dev")
	v.SetDefault("MONGO_DB_NAME", "accord_dev")
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("CACHE_TTL_MIN", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "accord-server")
	v.SetDefault("POLICY_ENFORCE", false)
	v.SetDefault("POLICY_ADMIN_ROLE", "admin")
	v.SetDefault("TOKEN_TTL_MIN", 60)
	v.SetDefault("TOKEN_FORMAT", "uuid")
	v.SetDefault("TOKEN_SIGNING_KEY", "a_very_secret_signing_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("TOKEN_ISSUER", "accord")
	v.SetDefault("TOKEN_SWEEP_SECONDS", 300)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, everything has a default or an env
		// binding. Anything else is a real read error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
