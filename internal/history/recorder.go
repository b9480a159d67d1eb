// Package history persists served predictions for each user.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/internal/metrics"
	"github.com/OldStager01/droplet-predictor/internal/resilience"
	"github.com/OldStager01/droplet-predictor/pkg/models"
)

const breakerName = "prediction_history"

// Store is implemented by queries.PredictionRepository.
type Store interface {
	Insert(ctx context.Context, rec *models.PredictionRecord) error
	ListByUser(ctx context.Context, userID, limit int) ([]*models.PredictionRecord, error)
}

type Config struct {
	MaxFailures  int
	OpenTimeout  time.Duration
	WriteTimeout time.Duration
}

// Recorder writes and reads history through a circuit breaker so an
// unavailable database fails fast instead of stalling every request.
type Recorder struct {
	store   Store
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
}

func NewRecorder(store Store, cfg Config, m *metrics.Metrics) *Recorder {
	if m == nil {
		m = metrics.Get()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        breakerName,
		MaxFailures: cfg.MaxFailures,
		Timeout:     cfg.OpenTimeout,
		CallTimeout: cfg.WriteTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
			m.SetCircuitBreakerState(name, int(to))
		},
	})
	m.SetCircuitBreakerState(breakerName, int(resilience.StateClosed))

	return &Recorder{
		store:   store,
		breaker: breaker,
		metrics: m,
	}
}

// Record stores one served prediction. Callers treat the error as advisory:
// a prediction that was computed is returned even if it could not be saved.
func (r *Recorder) Record(ctx context.Context, rec *models.PredictionRecord) error {
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.store.Insert(ctx, rec)
	})

	switch {
	case err == nil:
		r.metrics.IncHistoryWrites("ok")
	case errors.Is(err, resilience.ErrCircuitOpen):
		r.metrics.IncHistoryWrites("rejected")
		logger.WithConfiguration(rec.DataType).Debug("History write skipped, breaker open")
	default:
		r.metrics.IncHistoryWrites("error")
		logger.WithContext(ctx).WithField("data_type", rec.DataType).WithError(err).Warn("Failed to record prediction history")
	}
	return err
}

func (r *Recorder) List(ctx context.Context, userID, limit int) ([]*models.PredictionRecord, error) {
	var records []*models.PredictionRecord
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		records, err = r.store.ListByUser(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.PredictionRecord{}
	}
	return records, nil
}

func (r *Recorder) BreakerState() resilience.State {
	return r.breaker.State()
}
