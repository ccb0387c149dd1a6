package model

import "errors"

// ArtifactKind tags the trained-model variant held in an Artifact.
type ArtifactKind string

const (
	ArtifactNone   ArtifactKind = ""
	ArtifactLinear ArtifactKind = "linear"
	ArtifactForest ArtifactKind = "random_forest"
)

// ErrNoArtifact is returned when inference is attempted on an empty or
// malformed artifact.
var ErrNoArtifact = errors.New("no usable model artifact")

// Artifact is a tagged variant over the trained-model shapes. Exactly one of
// Linear/Forest is set when Kind is non-empty; consumers dispatch on Kind
// rather than probing for fields.
type Artifact struct {
	Kind   ArtifactKind `json:"kind"`
	Linear *LinearModel `json:"linear,omitempty"`
	Forest *ForestModel `json:"forest,omitempty"`
}

// Predict runs inference for whichever variant the artifact holds.
func (a Artifact) Predict(features []float64) (float64, error) {
	switch a.Kind {
	case ArtifactLinear:
		if a.Linear == nil {
			return 0, ErrNoArtifact
		}
		return a.Linear.Predict(features), nil
	case ArtifactForest:
		if a.Forest == nil || len(a.Forest.Trees) == 0 {
			return 0, ErrNoArtifact
		}
		return a.Forest.Predict(features), nil
	default:
		return 0, ErrNoArtifact
	}
}
