package predictor

import (
	"errors"

	"github.com/OldStager01/droplet-predictor/internal/artifact"
	"github.com/OldStager01/droplet-predictor/internal/model"
	"github.com/OldStager01/droplet-predictor/internal/registry"
	"github.com/OldStager01/droplet-predictor/internal/scaler"
)

var (
	ErrUnknownConfiguration = registry.ErrUnknownConfiguration
	ErrDimensionMismatch    = errors.New("dimension mismatch")
	ErrInvalidInputValue    = errors.New("invalid input value")
	ErrModelUnavailable     = errors.New("model unavailable")
	ErrNonFiniteOutput      = errors.New("non-finite output")
)

// ErrorKind is the client-facing name of a failure.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindUnknownConfiguration ErrorKind = "UnknownConfiguration"
	KindDimensionMismatch    ErrorKind = "DimensionMismatch"
	KindInvalidInputValue    ErrorKind = "InvalidInputValue"
	KindMissingFeatureColumn ErrorKind = "MissingFeatureColumn"
	KindDegenerateFeature    ErrorKind = "DegenerateFeature"
	KindEmptyTrainingSet     ErrorKind = "EmptyTrainingSet"
	KindArtifactNotFound     ErrorKind = "ArtifactNotFound"
	KindWeightShapeMismatch  ErrorKind = "WeightShapeMismatch"
	KindScalerNotFitted      ErrorKind = "ScalerNotFitted"
	KindModelUnavailable     ErrorKind = "ModelUnavailable"
	KindNonFiniteOutput      ErrorKind = "NonFiniteOutput"
	KindInternal             ErrorKind = "Internal"
)

type kindMapping struct {
	target error
	kind   ErrorKind
}

// Order matters: the outer pipeline kinds win over whatever they wrap.
var outerKinds = []kindMapping{
	{ErrUnknownConfiguration, KindUnknownConfiguration},
	{ErrDimensionMismatch, KindDimensionMismatch},
	{ErrInvalidInputValue, KindInvalidInputValue},
	{ErrModelUnavailable, KindModelUnavailable},
	{ErrNonFiniteOutput, KindNonFiniteOutput},
}

var causeKinds = []kindMapping{
	{artifact.ErrMissingFeatureColumn, KindMissingFeatureColumn},
	{artifact.ErrArtifactNotFound, KindArtifactNotFound},
	{scaler.ErrDegenerateFeature, KindDegenerateFeature},
	{scaler.ErrEmptyTrainingSet, KindEmptyTrainingSet},
	{scaler.ErrNotFitted, KindScalerNotFitted},
	{model.ErrWeightShapeMismatch, KindWeightShapeMismatch},
}

// Kind classifies err by the stage of the pipeline that failed.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if k, ok := match(err, outerKinds); ok {
		return k
	}
	if k, ok := match(err, causeKinds); ok {
		return k
	}
	return KindInternal
}

// CauseKind reports the most specific known cause, so a ModelUnavailable
// caused by a missing column reports MissingFeatureColumn.
func CauseKind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if k, ok := match(err, causeKinds); ok {
		return k
	}
	return Kind(err)
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	switch Kind(err) {
	case KindUnknownConfiguration, KindDimensionMismatch, KindInvalidInputValue:
		return true
	}
	return false
}

func match(err error, table []kindMapping) (ErrorKind, bool) {
	for _, m := range table {
		if errors.Is(err, m.target) {
			return m.kind, true
		}
	}
	return KindNone, false
}
