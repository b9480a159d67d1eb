// Package manager owns the per-configuration cache of fitted scalers and
// loaded models.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/OldStager01/droplet-predictor/internal/artifact"
	"github.com/OldStager01/droplet-predictor/internal/events"
	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/internal/metrics"
	"github.com/OldStager01/droplet-predictor/internal/model"
	"github.com/OldStager01/droplet-predictor/internal/registry"
	"github.com/OldStager01/droplet-predictor/internal/scaler"
)

var ErrLoadFailed = errors.New("model load failed")

const defaultLoadTimeout = 30 * time.Second

// Entry is a fully formed model/scaler pair. Entries are never mutated after
// they are cached.
type Entry struct {
	Spec     registry.ConfigurationSpec
	Model    model.Regressor
	Scaler   *scaler.FeatureScaler
	LoadedAt time.Time
}

type Config struct {
	Registry    *registry.Registry
	Store       artifact.Store
	LoadTimeout time.Duration
	Publisher   *events.Publisher
	Metrics     *metrics.Metrics
}

// Manager loads each configuration at most once per process. Cached lookups
// take a read lock only; first loads for the same id are collapsed with
// singleflight so concurrent callers share one fit/load sequence.
type Manager struct {
	registry    *registry.Registry
	store       artifact.Store
	loadTimeout time.Duration
	publisher   *events.Publisher
	metrics     *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]*Entry
	flight  singleflight.Group
}

func New(cfg Config) *Manager {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.Store == nil {
		cfg.Store = artifact.NewFileStore()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Get()
	}

	return &Manager{
		registry:    cfg.Registry,
		store:       cfg.Store,
		loadTimeout: cfg.LoadTimeout,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		entries:     make(map[string]*Entry),
	}
}

// Acquire returns the cached pair for id, loading it on first use. A caller
// whose ctx ends stops waiting; the shared load keeps running for the others
// under its own timeout.
func (m *Manager) Acquire(ctx context.Context, id string) (*Entry, error) {
	if entry, ok := m.cached(id); ok {
		return entry, nil
	}

	spec, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}

	ch := m.flight.DoChan(id, func() (interface{}, error) {
		return m.loadOnce(spec)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, id, ctx.Err())
	}
}

// Warm loads the given configurations, or all of them when ids is empty.
func (m *Manager) Warm(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		ids = m.registry.IDs()
	}

	var errs []error
	for _, id := range ids {
		if _, err := m.Acquire(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cached lists the ids with a cached entry.
func (m *Manager) Cached() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) cached(id string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	return entry, ok
}

type loadResult struct {
	entry *Entry
	rows  int
	err   error
}

func (m *Manager) loadOnce(spec registry.ConfigurationSpec) (*Entry, error) {
	// A flight that finished between our cache miss and DoChan already stored
	// the entry.
	if entry, ok := m.cached(spec.ID); ok {
		return entry, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.loadTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan loadResult, 1)
	go func() {
		entry, rows, err := m.load(ctx, spec)
		done <- loadResult{entry: entry, rows: rows, err: err}
	}()

	var res loadResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	took := time.Since(start)

	if res.err != nil {
		err := fmt.Errorf("%w: %s: %w", ErrLoadFailed, spec.ID, res.err)
		logger.WithConfiguration(spec.ID).WithError(res.err).Errorf("Failed to load model for %s", spec.DisplayName)
		m.metrics.ObserveModelLoad(spec.ID, "error", took)
		m.publisher.ModelLoadFailed(spec.ID, err, took)
		return nil, err
	}

	m.mu.Lock()
	m.entries[spec.ID] = res.entry
	cached := len(m.entries)
	m.mu.Unlock()

	logger.WithConfiguration(spec.ID).Infof("Loaded model for %s (%d training rows, %s)", spec.DisplayName, res.rows, took)
	m.metrics.ObserveModelLoad(spec.ID, "ok", took)
	m.metrics.SetCachedModels(cached)
	m.publisher.ModelLoaded(spec.ID, res.rows, took)
	return res.entry, nil
}

// load fits the scaler and loads the weights. Nothing is shared until the
// caller stores the returned entry.
func (m *Manager) load(ctx context.Context, spec registry.ConfigurationSpec) (*Entry, int, error) {
	table, err := m.store.ReadTrainingTable(ctx, spec.TrainingDataPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read training data: %w", err)
	}

	rows, err := table.Select(spec.FeatureOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select features: %w", err)
	}

	fs, err := scaler.Fit(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fit scaler: %w", err)
	}

	blob, err := m.store.ReadModelWeights(ctx, spec.ModelArtifactPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read model weights: %w", err)
	}

	mlp, err := model.Load(spec.InputDim, blob)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load model weights: %w", err)
	}

	return &Entry{
		Spec:     spec,
		Model:    mlp,
		Scaler:   fs,
		LoadedAt: time.Now(),
	}, len(rows), nil
}
