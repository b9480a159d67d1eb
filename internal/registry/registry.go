// Package registry holds the closed set of droplet-generation configurations
// the service can predict for.
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

var (
	ErrUnknownConfiguration = errors.New("unknown configuration")
	ErrInvalidSpec          = errors.New("invalid configuration spec")
)

// ConfigurationSpec describes one physical setup: the order of its input
// features, where its trained weights live and which dataset its scaler is
// fitted from.
type ConfigurationSpec struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"display_name"`
	InputDim          int      `json:"input_dim"`
	FeatureOrder      []string `json:"feature_order"`
	ModelArtifactPath string   `json:"-"`
	TrainingDataPath  string   `json:"-"`
}

func (s ConfigurationSpec) validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSpec)
	}
	if s.InputDim <= 0 {
		return fmt.Errorf("%w: %s has input_dim %d", ErrInvalidSpec, s.ID, s.InputDim)
	}
	if len(s.FeatureOrder) != s.InputDim {
		return fmt.Errorf("%w: %s declares %d features but input_dim %d",
			ErrInvalidSpec, s.ID, len(s.FeatureOrder), s.InputDim)
	}
	seen := make(map[string]bool, len(s.FeatureOrder))
	for _, f := range s.FeatureOrder {
		if seen[f] {
			return fmt.Errorf("%w: %s repeats feature %q", ErrInvalidSpec, s.ID, f)
		}
		seen[f] = true
	}
	return nil
}

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	specs map[string]ConfigurationSpec
	ids   []string
}

func New(specs ...ConfigurationSpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]ConfigurationSpec, len(specs))}
	for _, s := range specs {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.specs[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidSpec, s.ID)
		}
		s.FeatureOrder = append([]string(nil), s.FeatureOrder...)
		r.specs[s.ID] = s
		r.ids = append(r.ids, s.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

func (r *Registry) Get(id string) (ConfigurationSpec, error) {
	s, ok := r.specs[id]
	if !ok {
		return ConfigurationSpec{}, fmt.Errorf("%w: %q", ErrUnknownConfiguration, id)
	}
	s.FeatureOrder = append([]string(nil), s.FeatureOrder...)
	return s, nil
}

func (r *Registry) List() []ConfigurationSpec {
	out := make([]ConfigurationSpec, 0, len(r.ids))
	for _, id := range r.ids {
		s, _ := r.Get(id)
		out = append(out, s)
	}
	return out
}

func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Default returns the three configurations the service ships with, with
// artifact and training file names resolved against the given directories.
func Default(artifactDir, trainingDir string) *Registry {
	r, err := New(
		ConfigurationSpec{
			ID:                "type1",
			DisplayName:       "Co-flow",
			InputDim:          8,
			FeatureOrder:      []string{"D1", "D2", "D3", "Q1", "Q2", "s", "μ1", "μ2"},
			ModelArtifactPath: filepath.Join(artifactDir, "mlp_model_Co-flow.json"),
			TrainingDataPath:  filepath.Join(trainingDir, "Diameter-C-train.xlsx"),
		},
		ConfigurationSpec{
			ID:                "type2",
			DisplayName:       "T-junction",
			InputDim:          8,
			FeatureOrder:      []string{"X1", "X2", "X3", "X4", "X5", "X6", "X7", "X8"},
			ModelArtifactPath: filepath.Join(artifactDir, "mlp_model_T-junction.json"),
			TrainingDataPath:  filepath.Join(trainingDir, "Diameter-T-train.xlsx"),
		},
		ConfigurationSpec{
			ID:                "type3",
			DisplayName:       "Flow-focusing",
			InputDim:          9,
			FeatureOrder:      []string{"X1", "X2", "X3", "X4", "X5", "X6", "X7", "X8", "X9"},
			ModelArtifactPath: filepath.Join(artifactDir, "mlp_model_Flow-focusing.json"),
			TrainingDataPath:  filepath.Join(trainingDir, "Diameter-F-train.xlsx"),
		},
	)
	if err != nil {
		// the built-in table is static; a failure here is a programming error
		panic(err)
	}
	return r
}
