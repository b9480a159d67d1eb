package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/droplet-predictor/internal/artifact"
	"github.com/OldStager01/droplet-predictor/internal/metrics"
	"github.com/OldStager01/droplet-predictor/internal/model"
	"github.com/OldStager01/droplet-predictor/internal/registry"
	"github.com/OldStager01/droplet-predictor/internal/scaler"
)

type fakeStore struct {
	mu       sync.Mutex
	weights  map[string][]byte
	tables   map[string]*artifact.Table
	reads    map[string]int
	gate     chan struct{}
	tableErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		weights: make(map[string][]byte),
		tables:  make(map[string]*artifact.Table),
		reads:   make(map[string]int),
	}
}

func (s *fakeStore) ReadModelWeights(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[path]++
	blob, ok := s.weights[path]
	if !ok {
		return nil, artifact.ErrArtifactNotFound
	}
	return blob, nil
}

func (s *fakeStore) ReadTrainingTable(ctx context.Context, path string) (*artifact.Table, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[path]++
	if s.tableErr != nil {
		return nil, s.tableErr
	}
	t, ok := s.tables[path]
	if !ok {
		return nil, artifact.ErrArtifactNotFound
	}
	return t, nil
}

func (s *fakeStore) readCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[path]
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New(
		registry.ConfigurationSpec{
			ID:                "alpha",
			DisplayName:       "Alpha",
			InputDim:          2,
			FeatureOrder:      []string{"a", "b"},
			ModelArtifactPath: "alpha.json",
			TrainingDataPath:  "alpha.csv",
		},
		registry.ConfigurationSpec{
			ID:                "beta",
			DisplayName:       "Beta",
			InputDim:          2,
			FeatureOrder:      []string{"x", "y"},
			ModelArtifactPath: "beta.json",
			TrainingDataPath:  "beta.csv",
		},
	)
	require.NoError(t, err)
	return r
}

func weightsFor(t *testing.T, dim int) []byte {
	t.Helper()
	m, err := model.New(dim)
	require.NoError(t, err)
	blob, err := m.StateDict().Encode()
	require.NoError(t, err)
	return blob
}

func seed(t *testing.T, s *fakeStore) {
	t.Helper()
	s.weights["alpha.json"] = weightsFor(t, 2)
	s.weights["beta.json"] = weightsFor(t, 2)
	s.tables["alpha.csv"] = artifact.NewTable(
		[]string{"a", "b", "target"},
		[][]string{{"1", "10", "0"}, {"2", "20", "0"}, {"3", "30", "0"}},
	)
	s.tables["beta.csv"] = artifact.NewTable(
		[]string{"y", "x"},
		[][]string{{"5", "1"}, {"7", "2"}},
	)
}

func newTestManager(t *testing.T, store artifact.Store, timeout time.Duration) *Manager {
	t.Helper()
	return New(Config{
		Registry:    testRegistry(t),
		Store:       store,
		LoadTimeout: timeout,
		Metrics:     metrics.New(),
	})
}

func TestManager_AcquireLoadsOnce(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	m := newTestManager(t, store, time.Second)

	first, err := m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	second, err := m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, store.readCount("alpha.csv"))
	assert.Equal(t, 1, store.readCount("alpha.json"))
	assert.Equal(t, []string{"alpha"}, m.Cached())
}

func TestManager_ScalerFittedInFeatureOrder(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	m := newTestManager(t, store, time.Second)

	entry, err := m.Acquire(context.Background(), "beta")
	require.NoError(t, err)

	// beta's table lists y before x; the scaler must follow x, y.
	assert.InDeltaSlice(t, []float64{1.5, 6}, entry.Scaler.Mean(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 1}, entry.Scaler.Scale(), 1e-12)
	assert.Equal(t, 2, entry.Model.InputDim())
	assert.Equal(t, "beta", entry.Spec.ID)
}

func TestManager_ConcurrentFirstUseLoadsOnce(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	store.gate = make(chan struct{})
	m := newTestManager(t, store, 5*time.Second)

	const callers = 32
	var wg sync.WaitGroup
	var failures atomic.Int32
	entries := make([]*Entry, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := m.Acquire(context.Background(), "alpha")
			if err != nil {
				failures.Add(1)
				return
			}
			entries[i] = e
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, store.readCount("alpha.csv"))
	assert.Equal(t, 1, store.readCount("alpha.json"))
	for _, e := range entries {
		assert.Same(t, entries[0], e)
	}
}

func TestManager_IndependentConfigurations(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	m := newTestManager(t, store, time.Second)

	a, err := m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	b, err := m.Acquire(context.Background(), "beta")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a.Scaler, b.Scaler)
	assert.Equal(t, []string{"alpha", "beta"}, m.Cached())
}

func TestManager_UnknownConfigurationDoesNoIO(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	m := newTestManager(t, store, time.Second)

	_, err := m.Acquire(context.Background(), "gamma")
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownConfiguration)
	assert.NotErrorIs(t, err, ErrLoadFailed)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.reads)
}

func TestManager_FailedLoadIsRetried(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	delete(store.weights, "alpha.json")
	m := newTestManager(t, store, time.Second)

	_, err := m.Acquire(context.Background(), "alpha")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, artifact.ErrArtifactNotFound)
	assert.Empty(t, m.Cached())

	store.mu.Lock()
	store.weights["alpha.json"] = weightsFor(t, 2)
	store.mu.Unlock()

	entry, err := m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	assert.NotNil(t, entry)
	assert.Equal(t, 2, store.readCount("alpha.csv"))
}

func TestManager_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, s *fakeStore)
		wantErr error
	}{
		{
			name: "missing feature column",
			mutate: func(t *testing.T, s *fakeStore) {
				s.tables["alpha.csv"] = artifact.NewTable([]string{"a"}, [][]string{{"1"}, {"2"}})
			},
			wantErr: artifact.ErrMissingFeatureColumn,
		},
		{
			name: "degenerate feature",
			mutate: func(t *testing.T, s *fakeStore) {
				s.tables["alpha.csv"] = artifact.NewTable(
					[]string{"a", "b"},
					[][]string{{"1", "4"}, {"2", "4"}},
				)
			},
			wantErr: scaler.ErrDegenerateFeature,
		},
		{
			name: "empty training table",
			mutate: func(t *testing.T, s *fakeStore) {
				s.tables["alpha.csv"] = artifact.NewTable([]string{"a", "b"}, nil)
			},
			wantErr: scaler.ErrEmptyTrainingSet,
		},
		{
			name: "weights for another dimension",
			mutate: func(t *testing.T, s *fakeStore) {
				s.weights["alpha.json"] = weightsFor(t, 3)
			},
			wantErr: model.ErrWeightShapeMismatch,
		},
		{
			name: "store failure",
			mutate: func(t *testing.T, s *fakeStore) {
				s.tableErr = errors.New("disk on fire")
			},
			wantErr: ErrLoadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			seed(t, store)
			tt.mutate(t, store)
			m := newTestManager(t, store, time.Second)

			_, err := m.Acquire(context.Background(), "alpha")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrLoadFailed)
			assert.Empty(t, m.Cached())
		})
	}
}

func TestManager_LoadTimeoutLeavesNoEntry(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	store.gate = make(chan struct{})
	m := newTestManager(t, store, 30*time.Millisecond)

	_, err := m.Acquire(context.Background(), "alpha")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, m.Cached())

	close(store.gate)
	// let the abandoned load finish; its result must not be cached
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, m.Cached())

	_, err = m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, m.Cached())
}

func TestManager_CallerContextCancelled(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	store.gate = make(chan struct{})
	m := newTestManager(t, store, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Acquire(ctx, "alpha")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(store.gate)
	require.Eventually(t, func() bool {
		return len(m.Cached()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestManager_Warm(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	m := newTestManager(t, store, time.Second)

	require.NoError(t, m.Warm(context.Background()))
	assert.Equal(t, []string{"alpha", "beta"}, m.Cached())
}

func TestManager_WarmJoinsErrors(t *testing.T) {
	store := newFakeStore()
	seed(t, store)
	delete(store.tables, "beta.csv")
	m := newTestManager(t, store, time.Second)

	err := m.Warm(context.Background(), "alpha", "beta")
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrArtifactNotFound)
	assert.Equal(t, []string{"alpha"}, m.Cached())
}
