// Package model implements the fixed feed-forward regressor used for every
// configuration: input -> 100 -> 100 -> 1 with ReLU hidden activations.
package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const HiddenWidth = 100

var (
	ErrInvalidInputDim     = errors.New("input dimension must be positive")
	ErrInputDimension      = errors.New("input vector has wrong dimension")
	ErrWeightShapeMismatch = errors.New("weight shape mismatch")
)

// Regressor is the read-only inference surface cached per configuration.
type Regressor interface {
	Forward(x []float64) (float64, error)
	InputDim() int
}

type linear struct {
	weight *mat.Dense // [out, in]
	bias   *mat.VecDense
}

func newLinear(in, out int) linear {
	bound := math.Sqrt(6.0 / float64(in+out))
	w := distuv.Uniform{Min: -bound, Max: bound}
	weights := make([]float64, in*out)
	for i := range weights {
		weights[i] = w.Rand()
	}

	b := distuv.Uniform{Min: -1 / math.Sqrt(float64(in)), Max: 1 / math.Sqrt(float64(in))}
	biases := make([]float64, out)
	for i := range biases {
		biases[i] = b.Rand()
	}

	return linear{
		weight: mat.NewDense(out, in, weights),
		bias:   mat.NewVecDense(out, biases),
	}
}

func (l linear) apply(dst *mat.VecDense, x mat.Vector) {
	dst.MulVec(l.weight, x)
	dst.AddVec(dst, l.bias)
}

// MLP is immutable once its weights are loaded; Forward allocates its own
// buffers so concurrent calls do not share state.
type MLP struct {
	inputDim int
	fc1      linear
	fc2      linear
	fc3      linear
}

// New builds the topology with Xavier-uniform weights. The values only matter
// until LoadStateDict replaces them.
func New(inputDim int) (*MLP, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInputDim, inputDim)
	}
	return &MLP{
		inputDim: inputDim,
		fc1:      newLinear(inputDim, HiddenWidth),
		fc2:      newLinear(HiddenWidth, HiddenWidth),
		fc3:      newLinear(HiddenWidth, 1),
	}, nil
}

func (m *MLP) InputDim() int {
	return m.inputDim
}

func (m *MLP) Forward(x []float64) (float64, error) {
	if len(x) != m.inputDim {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrInputDimension, len(x), m.inputDim)
	}

	in := mat.NewVecDense(m.inputDim, append([]float64(nil), x...))

	h1 := mat.NewVecDense(HiddenWidth, nil)
	m.fc1.apply(h1, in)
	relu(h1)

	h2 := mat.NewVecDense(HiddenWidth, nil)
	m.fc2.apply(h2, h1)
	relu(h2)

	out := mat.NewVecDense(1, nil)
	m.fc3.apply(out, h2)

	return out.AtVec(0), nil
}

func relu(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) < 0 {
			v.SetVec(i, 0)
		}
	}
}
