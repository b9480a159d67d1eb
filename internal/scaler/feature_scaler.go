// Package scaler standardizes feature vectors with statistics fitted from a
// configuration's training dataset.
package scaler

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyTrainingSet     = errors.New("empty training set")
	ErrDegenerateFeature    = errors.New("degenerate feature: zero variance")
	ErrRaggedRows           = errors.New("training rows have inconsistent width")
	ErrInvalidTrainingValue = errors.New("training value is not finite")
	ErrNotFitted            = errors.New("scaler not fitted")
	ErrDimensionMismatch    = errors.New("feature vector dimension mismatch")
)

// FeatureScaler holds per-feature mean and population standard deviation.
// A fitted scaler is immutable and safe for concurrent use.
type FeatureScaler struct {
	mean  []float64
	scale []float64
}

// Fit computes column statistics over rows shaped [N][dim]. A column whose
// values are all identical is rejected rather than clamped; any other spread,
// however small next to the mean, is kept.
func Fit(rows [][]float64) (*FeatureScaler, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, ErrEmptyTrainingSet
	}

	column := make([]float64, len(rows))
	mean := make([]float64, dim)
	scale := make([]float64, dim)

	for j := 0; j < dim; j++ {
		constant := true
		for i, row := range rows {
			if len(row) != dim {
				return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRaggedRows, i, len(row), dim)
			}
			if math.IsNaN(row[j]) || math.IsInf(row[j], 0) {
				return nil, fmt.Errorf("%w: row %d column %d", ErrInvalidTrainingValue, i, j)
			}
			column[i] = row[j]
			constant = constant && column[i] == column[0]
		}

		m, sd := stat.PopMeanStdDev(column, nil)
		if constant || !(sd > 0) {
			return nil, fmt.Errorf("%w: column %d", ErrDegenerateFeature, j)
		}
		mean[j] = m
		scale[j] = sd
	}

	return &FeatureScaler{mean: mean, scale: scale}, nil
}

// New builds a scaler from known statistics.
func New(mean, scale []float64) (*FeatureScaler, error) {
	if len(mean) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("%w: %d means, %d scales", ErrDimensionMismatch, len(mean), len(scale))
	}
	for i, s := range scale {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: column %d has scale %v", ErrDegenerateFeature, i, s)
		}
		if math.IsNaN(mean[i]) || math.IsInf(mean[i], 0) {
			return nil, fmt.Errorf("%w: column %d has mean %v", ErrInvalidTrainingValue, i, mean[i])
		}
	}
	return &FeatureScaler{
		mean:  append([]float64(nil), mean...),
		scale: append([]float64(nil), scale...),
	}, nil
}

func (s *FeatureScaler) fitted() bool {
	return s != nil && len(s.mean) > 0
}

// Transform returns (x - mean) / scale elementwise without touching raw.
func (s *FeatureScaler) Transform(raw []float64) ([]float64, error) {
	if !s.fitted() {
		return nil, ErrNotFitted
	}
	if len(raw) != len(s.mean) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(raw), len(s.mean))
	}

	out := make([]float64, len(raw))
	for i, x := range raw {
		out[i] = (x - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

func (s *FeatureScaler) Dim() int {
	if s == nil {
		return 0
	}
	return len(s.mean)
}

func (s *FeatureScaler) Mean() []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s.mean...)
}

func (s *FeatureScaler) Scale() []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s.scale...)
}
