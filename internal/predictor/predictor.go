// Package predictor validates raw feature vectors and runs them through the
// cached scaler and model of their configuration.
package predictor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/OldStager01/droplet-predictor/internal/events"
	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/internal/manager"
	"github.com/OldStager01/droplet-predictor/internal/metrics"
	"github.com/OldStager01/droplet-predictor/internal/registry"
)

// ModelSource hands out loaded model/scaler pairs.
type ModelSource interface {
	Acquire(ctx context.Context, id string) (*manager.Entry, error)
}

type Config struct {
	Registry  *registry.Registry
	Source    ModelSource
	Publisher *events.Publisher
	Metrics   *metrics.Metrics
}

type Predictor struct {
	registry  *registry.Registry
	source    ModelSource
	publisher *events.Publisher
	metrics   *metrics.Metrics
}

func New(cfg Config) *Predictor {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Get()
	}
	return &Predictor{
		registry:  cfg.Registry,
		source:    cfg.Source,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
	}
}

// Predict returns the scalar prediction for features, which must be raw
// values in the configuration's feature order. Input is validated before any
// model is loaded.
func (p *Predictor) Predict(ctx context.Context, id string, features []float64) (float64, error) {
	start := time.Now()
	prediction, err := p.predict(ctx, id, features)
	took := time.Since(start)

	if err != nil {
		kind := Kind(err)
		p.metrics.ObservePrediction(id, string(kind), took)
		p.publisher.PredictionFailed(id, string(kind), err, took)

		entry := logger.WithContext(ctx).WithField("data_type", id).WithField("kind", kind)
		if IsClientError(err) {
			entry.Debugf("Rejected prediction request: %v", err)
		} else {
			entry.WithError(err).Error("Prediction failed")
		}
		return 0, err
	}

	p.metrics.ObservePrediction(id, "ok", took)
	p.publisher.PredictionCompleted(id, prediction, took)
	return prediction, nil
}

func (p *Predictor) predict(ctx context.Context, id string, features []float64) (float64, error) {
	spec, err := p.registry.Get(id)
	if err != nil {
		return 0, err
	}

	if len(features) != spec.InputDim {
		return 0, fmt.Errorf("%w: %s expects %d features, got %d",
			ErrDimensionMismatch, id, spec.InputDim, len(features))
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s (index %d) is %v", ErrInvalidInputValue, spec.FeatureOrder[i], i, v)
		}
	}

	entry, err := p.source.Acquire(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	scaled, err := entry.Scaler.Transform(features)
	if err != nil {
		return 0, fmt.Errorf("failed to scale features for %s: %w", id, err)
	}

	out, err := entry.Model.Forward(scaled)
	if err != nil {
		return 0, fmt.Errorf("failed to run model for %s: %w", id, err)
	}

	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("%w: %s produced %v", ErrNonFiniteOutput, id, out)
	}

	return out, nil
}

// Configurations lists the known configurations.
func (p *Predictor) Configurations() []registry.ConfigurationSpec {
	return p.registry.List()
}
