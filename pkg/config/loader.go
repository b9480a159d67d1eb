package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads defaults, then the config file, then PREDICTOR_* environment
// variables. A .env file in the working directory or next to configPath
// seeds the environment without overriding variables already set.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(configPath); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/droplet-predictor")
	}

	// Environment variable settings
	v.SetEnvPrefix("PREDICTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "droplet-predictor")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.log_max_size_mb", 50)
	v.SetDefault("app.log_max_backups", 3)
	v.SetDefault("app.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "predictor")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migration_timeout", "60s")

	// Model artifact defaults
	v.SetDefault("models.artifact_dir", "module")
	v.SetDefault("models.training_dir", "train_file")

	// Predictor defaults
	v.SetDefault("predictor.load_timeout", "30s")
	v.SetDefault("predictor.warmup", false)
	v.SetDefault("predictor.history.max_failures", 5)
	v.SetDefault("predictor.history.timeout", "30s")

	// API defaults
	v.SetDefault("api.port", 5000)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "60s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.auth_rate_limit", 5)
	v.SetDefault("api.max_body_bytes", 1<<20)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.jwt_issuer", "droplet-predictor")
	v.SetDefault("api.cookie_name", "auth_token")
	v.SetDefault("api.cookie_path", "/")
	v.SetDefault("api.cookie_secure", true)
	v.SetDefault("api.cookie_http_only", true)
	v.SetDefault("api.default_limit", 50)
	v.SetDefault("api.max_limit", 500)

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	// Events defaults
	v.SetDefault("events.buffer_size", 100)
}

func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		if dir := filepath.Dir(configPath); dir != "." {
			candidates = append(candidates, filepath.Join(dir, ".env"))
		}
	}

	for _, path := range candidates {
		err := godotenv.Load(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}
