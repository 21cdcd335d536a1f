package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	AI        AI        `mapstructure:"ai"`
	Server    Server    `mapstructure:"server"`
	Store     Store     `mapstructure:"store"`
	Database  Database  `mapstructure:"database"`
	Auth      Auth      `mapstructure:"auth"`
	Alerts    Alerts    `mapstructure:"alerts"`
	Analytics Analytics `mapstructure:"analytics"`
	Logging   Logging   `mapstructure:"logging"`
	PostHog   PostHog   `mapstructure:"posthog"`
}

// App holds general application configuration
type App struct {
	Debug        bool   `mapstructure:"debug"`
	DefaultTheme string `mapstructure:"default_theme"`
	ConfigFile   string `mapstructure:"config_file"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	ProModel    string  `mapstructure:"pro_model"`
	FlashModel  string  `mapstructure:"flash_model"`
	Timeout     string  `mapstructure:"timeout"`
	Temperature float32 `mapstructure:"temperature"`
}

// Server holds HTTP server configuration
type Server struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64           `mapstructure:"max_upload_bytes"`
	SecureCookies   bool            `mapstructure:"secure_cookies"`
	CORS            CORSConfig      `mapstructure:"cors"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// CORSConfig holds CORS middleware configuration
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig holds request throttling configuration
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Limit   int  `mapstructure:"limit"`
}

// Store holds the local SQLite store configuration
type Store struct {
	DataDir string `mapstructure:"data_dir"`
}

// Database holds the optional Postgres configuration. When a connection
// string is present it replaces the SQLite store.
type Database struct {
	ConnectionString string `mapstructure:"connection_string"`
	MaxOpenConns     int    `mapstructure:"max_open_conns"`
}

// Auth holds authentication provider configuration
type Auth struct {
	FirebaseAPIKey string        `mapstructure:"firebase_api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        string        `mapstructure:"timeout"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

// Alerts holds alert queue configuration
type Alerts struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Analytics holds analytics screen configuration
type Analytics struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Logging holds logging configuration
type Logging struct {
	Level string `mapstructure:"level"`
}

// PostHog holds product analytics configuration
type PostHog struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Host    string `mapstructure:"host"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".sentilytics")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.default_theme", "dark")

	viper.SetDefault("ai.gemini.pro_model", "gemini-2.5-pro")
	viper.SetDefault("ai.gemini.flash_model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.timeout", "120s")
	viper.SetDefault("ai.gemini.temperature", 0.0)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "180s")
	viper.SetDefault("server.shutdown_timeout", "15s")
	viper.SetDefault("server.max_upload_bytes", 10<<20)
	viper.SetDefault("server.secure_cookies", false)
	viper.SetDefault("server.cors.enabled", false)
	viper.SetDefault("server.rate_limit.enabled", false)
	viper.SetDefault("server.rate_limit.limit", 100)

	viper.SetDefault("store.data_dir", ".sentilytics")
	viper.SetDefault("database.max_open_conns", 10)

	viper.SetDefault("auth.base_url", "https://identitytoolkit.googleapis.com/v1")
	viper.SetDefault("auth.timeout", "15s")
	viper.SetDefault("auth.session_ttl", "168h")

	viper.SetDefault("alerts.ttl", "5s")
	viper.SetDefault("analytics.poll_interval", "30s")

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("posthog.enabled", false)
	viper.SetDefault("posthog.host", "https://app.posthog.com")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("auth.firebase_api_key", []string{
		"FIREBASE_API_KEY",
	})

	bindEnvKeys("database.connection_string", []string{
		"DATABASE_URL",
	})

	bindEnvKeys("posthog.api_key", []string{
		"POSTHOG_API_KEY",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"SENTILYTICS_DEBUG",
	})

	bindEnvKeys("logging.level", []string{
		"LOG_LEVEL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.Store.DataDir != "" {
		config.Store.DataDir = expandPath(config.Store.DataDir)
	}
	config.App.DefaultTheme = strings.ToLower(strings.TrimSpace(config.App.DefaultTheme))

	durations := map[string]string{
		"ai.gemini.timeout": config.AI.Gemini.Timeout,
		"auth.timeout":      config.Auth.Timeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig checks values that would otherwise fail later at runtime.
// A missing Gemini key is not fatal: the analysis service reports it per request.
func validateConfig(config *Config) error {
	var errors []string

	switch config.App.DefaultTheme {
	case "light", "dark":
	default:
		errors = append(errors, fmt.Sprintf("app.default_theme must be light or dark, got %q", config.App.DefaultTheme))
	}

	if config.AI.Gemini.ProModel == "" || config.AI.Gemini.FlashModel == "" {
		errors = append(errors, "ai.gemini.pro_model and ai.gemini.flash_model must both be set")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("server.port out of range: %d", config.Server.Port))
	}

	if config.Alerts.TTL <= 0 {
		errors = append(errors, "alerts.ttl must be positive")
	}

	if config.Analytics.PollInterval < time.Second {
		errors = append(errors, "analytics.poll_interval must be at least 1s")
	}

	if config.PostHog.Enabled && config.PostHog.APIKey == "" {
		errors = append(errors, "PostHog is enabled but no API key is set. Set POSTHOG_API_KEY")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// GeminiTimeout returns the parsed per-call model timeout, defaulting to two minutes.
func (g GeminiConfig) GeminiTimeout() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// RequestTimeout returns the parsed auth provider timeout, defaulting to 15s.
func (a Auth) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(a.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// Convenience getters for commonly used configuration values
func GetApp() App             { return Get().App }
func GetAI() AI               { return Get().AI }
func GetServer() Server       { return Get().Server }
func GetLogging() Logging     { return Get().Logging }
func GetPostHog() PostHog     { return Get().PostHog }
func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func IsDebugMode() bool       { return Get().App.Debug }

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
