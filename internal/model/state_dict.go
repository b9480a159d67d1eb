package model

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StateDict is the on-disk weight format, keyed the way a PyTorch state_dict
// names the three linear layers. Weight matrices are [out][in].
type StateDict struct {
	FC1Weight [][]float64 `json:"fc1.weight"`
	FC1Bias   []float64   `json:"fc1.bias"`
	FC2Weight [][]float64 `json:"fc2.weight"`
	FC2Bias   []float64   `json:"fc2.bias"`
	FC3Weight [][]float64 `json:"fc3.weight"`
	FC3Bias   []float64   `json:"fc3.bias"`
}

func DecodeStateDict(blob []byte) (*StateDict, error) {
	var sd StateDict
	if err := json.Unmarshal(blob, &sd); err != nil {
		return nil, fmt.Errorf("failed to decode weights: %w", err)
	}
	return &sd, nil
}

func (sd *StateDict) Encode() ([]byte, error) {
	return json.Marshal(sd)
}

// LoadStateDict replaces every layer's parameters. Shapes are checked for all
// tensors before anything is assigned, so a failed load leaves m unchanged.
func (m *MLP) LoadStateDict(sd *StateDict) error {
	if sd == nil {
		return fmt.Errorf("%w: empty state dict", ErrWeightShapeMismatch)
	}

	fc1, err := toLinear("fc1", sd.FC1Weight, sd.FC1Bias, m.inputDim, HiddenWidth)
	if err != nil {
		return err
	}
	fc2, err := toLinear("fc2", sd.FC2Weight, sd.FC2Bias, HiddenWidth, HiddenWidth)
	if err != nil {
		return err
	}
	fc3, err := toLinear("fc3", sd.FC3Weight, sd.FC3Bias, HiddenWidth, 1)
	if err != nil {
		return err
	}

	m.fc1, m.fc2, m.fc3 = fc1, fc2, fc3
	return nil
}

func (m *MLP) StateDict() *StateDict {
	sd := &StateDict{}
	sd.FC1Weight, sd.FC1Bias = fromLinear(m.fc1)
	sd.FC2Weight, sd.FC2Bias = fromLinear(m.fc2)
	sd.FC3Weight, sd.FC3Bias = fromLinear(m.fc3)
	return sd
}

// Load builds a model for inputDim and loads weights decoded from blob.
func Load(inputDim int, blob []byte) (*MLP, error) {
	sd, err := DecodeStateDict(blob)
	if err != nil {
		return nil, err
	}
	m, err := New(inputDim)
	if err != nil {
		return nil, err
	}
	if err := m.LoadStateDict(sd); err != nil {
		return nil, err
	}
	return m, nil
}

func toLinear(name string, weight [][]float64, bias []float64, in, out int) (linear, error) {
	if len(weight) != out {
		return linear{}, fmt.Errorf("%w: %s.weight has %d rows, want %d", ErrWeightShapeMismatch, name, len(weight), out)
	}
	data := make([]float64, 0, in*out)
	for i, row := range weight {
		if len(row) != in {
			return linear{}, fmt.Errorf("%w: %s.weight row %d has %d columns, want %d",
				ErrWeightShapeMismatch, name, i, len(row), in)
		}
		data = append(data, row...)
	}
	if len(bias) != out {
		return linear{}, fmt.Errorf("%w: %s.bias has %d values, want %d", ErrWeightShapeMismatch, name, len(bias), out)
	}

	return linear{
		weight: mat.NewDense(out, in, data),
		bias:   mat.NewVecDense(out, append([]float64(nil), bias...)),
	}, nil
}

func fromLinear(l linear) ([][]float64, []float64) {
	rows, _ := l.weight.Dims()
	weight := make([][]float64, rows)
	for i := range weight {
		weight[i] = mat.Row(nil, i, l.weight)
	}
	bias := make([]float64, l.bias.Len())
	for i := range bias {
		bias[i] = l.bias.AtVec(i)
	}
	return weight, bias
}
