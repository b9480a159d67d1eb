package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/droplet-predictor/pkg/config"
)

func validConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:     "test-app",
			Mode:     "development",
			LogLevel: "info",
		},
		Database: config.DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Name:           "testdb",
			User:           "user",
			Password:       "pass",
			MaxConnections: 10,
		},
		Models: config.ModelsConfig{
			ArtifactDir: "module",
			TrainingDir: "train_file",
		},
		Predictor: config.PredictorConfig{
			LoadTimeout: 30 * time.Second,
		},
		API: config.APIConfig{
			Port:      5000,
			RateLimit: 100,
		},
		Prometheus: config.PrometheusConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*config.Config)
		expectErr   bool
		errContains string
	}{
		{
			name:       "valid config",
			modifyFunc: func(c *config.Config) {},
			expectErr:  false,
		},
		{
			name: "missing artifact dir",
			modifyFunc: func(c *config.Config) {
				c.Models.ArtifactDir = ""
			},
			expectErr:   true,
			errContains: "models.artifact_dir is required",
		},
		{
			name: "non-positive load timeout",
			modifyFunc: func(c *config.Config) {
				c.Predictor.LoadTimeout = 0
			},
			expectErr:   true,
			errContains: "predictor.load_timeout must be positive",
		},
		{
			name: "invalid mode",
			modifyFunc: func(c *config.Config) {
				c.App.Mode = "staging"
			},
			expectErr:   true,
			errContains: "app.mode must be one of",
		},
		{
			name: "default jwt secret in production",
			modifyFunc: func(c *config.Config) {
				c.App.Mode = "production"
				c.API.JWTSecret = "change-me-in-production"
			},
			expectErr:   true,
			errContains: "jwt_secret must be changed",
		},
		{
			name: "metrics port clashes with api",
			modifyFunc: func(c *config.Config) {
				c.Prometheus.Port = c.API.Port
			},
			expectErr:   true,
			errContains: "prometheus.port must differ",
		},
		{
			name: "default limit above max",
			modifyFunc: func(c *config.Config) {
				c.API.DefaultLimit = 100
				c.API.MaxLimit = 10
			},
			expectErr:   true,
			errContains: "default_limit must not exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFunc(cfg)

			err := cfg.Validate()

			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  log_level: debug
models:
  artifact_dir: /srv/models
predictor:
  load_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "/srv/models", cfg.Models.ArtifactDir)
	assert.Equal(t, "train_file", cfg.Models.TrainingDir)
	assert.Equal(t, 5*time.Second, cfg.Predictor.LoadTimeout)
	assert.Equal(t, 5000, cfg.API.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PREDICTOR_API_PORT", "8081")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: env-test\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.API.Port)
	assert.Equal(t, "env-test", cfg.App.Name)
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	const key = "PREDICTOR_MODELS_TRAINING_DIR"
	require.Empty(t, os.Getenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=/data/train\n"), 0o644))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: dotenv\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/train", cfg.Models.TrainingDir)
}

func TestLoad_EnvBeatsDotEnv(t *testing.T) {
	t.Setenv("PREDICTOR_API_PORT", "7070")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PREDICTOR_API_PORT=6060\n"), 0o644))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: dotenv\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.API.Port)
}

func TestToDBConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Database.PingTimeout = 3 * time.Second

	db := cfg.Database.ToDBConfig()

	assert.Equal(t, cfg.Database.Host, db.Host)
	assert.Equal(t, cfg.Database.MaxConnections, db.MaxConnections)
	assert.Contains(t, db.DSN(), "dbname="+cfg.Database.Name)
	assert.Equal(t, 3*time.Second, db.PingTimeout)
}
