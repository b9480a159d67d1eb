package config

import (
	"errors"
	"fmt"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, errors.New("database.port must be between 1 and 65535"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if c.Database.MaxConnections <= 0 {
		errs = append(errs, errors.New("database.max_connections must be positive"))
	}

	// Model validation
	if c.Models.ArtifactDir == "" {
		errs = append(errs, errors.New("models.artifact_dir is required"))
	}
	if c.Models.TrainingDir == "" {
		errs = append(errs, errors.New("models.training_dir is required"))
	}

	// Predictor validation
	if c.Predictor.LoadTimeout <= 0 {
		errs = append(errs, errors.New("predictor.load_timeout must be positive"))
	}
	if c.Predictor.History.MaxFailures < 0 {
		errs = append(errs, errors.New("predictor.history.max_failures must not be negative"))
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.API.RateLimit <= 0 {
		errs = append(errs, errors.New("api.rate_limit must be positive"))
	}
	if c.API.MaxLimit > 0 && c.API.DefaultLimit > c.API.MaxLimit {
		errs = append(errs, errors.New("api.default_limit must not exceed api.max_limit"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}

	// Prometheus validation
	if c.Prometheus.Enabled && c.Prometheus.Port == c.API.Port {
		errs = append(errs, errors.New("prometheus.port must differ from api.port"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
