package model

// Candidate is one fitted regressor produced by a Backend.
type Candidate struct {
	Name     string
	Artifact Artifact
}

// Backend fits candidate regressors on training data. It is resolved once at
// startup: either the built-in implementation or the unavailable one, so
// "learning disabled" is an injectable configuration rather than a global
// flag.
type Backend interface {
	Available() bool
	Fit(X [][]float64, y []float64) ([]Candidate, error)
}

type builtinBackend struct {
	seed int64
}

// NewBuiltinBackend returns the working regressor-fitting backend. All
// fitting uses the given seed so results are reproducible.
func NewBuiltinBackend(seed int64) Backend {
	return builtinBackend{seed: seed}
}

func (builtinBackend) Available() bool { return true }

// Fit trains the two candidate regressors with materially different
// bias/variance trade-offs. Candidate order fixes tie-break precedence.
func (b builtinBackend) Fit(X [][]float64, y []float64) ([]Candidate, error) {
	linear, err := fitLinear(X, y)
	if err != nil {
		return nil, err
	}

	params := defaultForestParams()
	params.Seed = b.seed
	forest, err := fitForest(X, y, params)
	if err != nil {
		return nil, err
	}

	return []Candidate{
		{Name: "linear", Artifact: Artifact{Kind: ArtifactLinear, Linear: linear}},
		{Name: "random_forest", Artifact: Artifact{Kind: ArtifactForest, Forest: forest}},
	}, nil
}

type unavailableBackend struct{}

// UnavailableBackend returns a backend that fits nothing. Predictors wired
// with it stay on the empirical model and never retrain.
func UnavailableBackend() Backend { return unavailableBackend{} }

func (unavailableBackend) Available() bool { return false }

func (unavailableBackend) Fit([][]float64, []float64) ([]Candidate, error) {
	return nil, nil
}
