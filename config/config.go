package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	Extension ExtensionConfig `mapstructure:"extension"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// BackendConfig holds the live backend settings
type BackendConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	ForceFallback bool          `mapstructure:"force_fallback"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	Burst         int           `mapstructure:"burst"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

// IdentityConfig holds session token settings
type IdentityConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	Issuer        string        `mapstructure:"issuer"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	ForceFallback bool          `mapstructure:"force_fallback"`
}

// FallbackConfig holds the local fallback store settings
type FallbackConfig struct {
	DBPath   string `mapstructure:"db_path"`
	SeedDemo bool   `mapstructure:"seed_demo"`
}

// ExtensionConfig locates the browser extension's storage export
type ExtensionConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Load loads configuration from a .env file, environment variables and an
// optional config file. An explicit configFile must exist.
func Load(configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath(dataDir())
	}

	// DEALPOP_BACKEND_BASE_URL sets backend.base_url
	v.SetEnvPrefix("DEALPOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory. Variables already set
// in the environment win.
func loadEnvFile() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// dataDir is where the dashboard keeps its local state
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dealpop"
	}
	return filepath.Join(home, ".config", "dealpop")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	dir := dataDir()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*", "http://localhost:5173"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.probe_timeout", "3s")
	v.SetDefault("backend.force_fallback", false)
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.rate_limit", 10)
	v.SetDefault("backend.burst", 20)
	v.SetDefault("backend.max_attempts", 3)

	v.SetDefault("identity.jwt_secret", "")
	v.SetDefault("identity.issuer", "dealpop")
	v.SetDefault("identity.token_ttl", "24h")
	v.SetDefault("identity.force_fallback", false)

	v.SetDefault("fallback.db_path", filepath.Join(dir, "dealpop.db"))
	v.SetDefault("fallback.seed_demo", true)

	v.SetDefault("extension.path", filepath.Join(dir, "extension", "storage.json"))

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.cleanup_interval", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", false)
	v.SetDefault("log.path", filepath.Join(dir, "logs", "dealpop.log"))
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 14)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server port is required (set DEALPOP_SERVER_PORT)")
	}

	if config.Backend.BaseURL != "" {
		u, err := url.Parse(config.Backend.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend base URL must be absolute, got: %s", config.Backend.BaseURL)
		}
	}

	if config.Backend.ProbeTimeout <= 0 {
		return fmt.Errorf("backend probe timeout must be positive, got: %s", config.Backend.ProbeTimeout)
	}

	if config.Identity.TokenTTL <= 0 {
		return fmt.Errorf("identity token TTL must be positive, got: %s", config.Identity.TokenTTL)
	}

	if config.Environment() == "production" && config.Identity.JWTSecret == "" {
		return fmt.Errorf("identity JWT secret is required in production (set DEALPOP_IDENTITY_JWT_SECRET)")
	}

	if config.Fallback.DBPath == "" {
		return fmt.Errorf("fallback database path is required")
	}

	switch strings.ToLower(config.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error, got: %s", config.Log.Level)
	}

	return nil
}

// Environment returns the normalized server environment
func (c *Config) Environment() string {
	return strings.ToLower(c.Server.Environment)
}

// LiveBackendConfigured reports whether a live backend URL is set
func (c *Config) LiveBackendConfigured() bool {
	return c.Backend.BaseURL != ""
}
