package model

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/geckom/smartcharge-predictor/internal/history"
)

// MinSamplesForTraining is the minimum number of usable rows (after
// filtering) required before a training run proceeds.
const MinSamplesForTraining = 20

// RetrainInterval caps retraining cost to at most one run per day per device
// regardless of polling frequency.
const RetrainInterval = 24 * time.Hour

const heldOutFraction = 0.2

// ModelType identifies which family of model a device currently forecasts
// with.
type ModelType string

const (
	TypeEmpirical ModelType = "empirical"
	TypeLearned   ModelType = "learned"
)

// StateStore persists trained-model state blobs. Blobs are opaque to the
// implementation.
type StateStore interface {
	LoadState(deviceID string) ([]byte, error) // (nil, nil) when none exists
	SaveState(deviceID string, blob []byte) error
	DeleteState(deviceID string) error
}

// State is the per-device model selection and its trained artifact. It is
// replaced wholesale by training, never mutated in place.
type State struct {
	SelectedType      ModelType `json:"selected_type"`
	SelectedName      string    `json:"selected_name,omitempty"` // linear, random_forest or empirical
	Artifact          Artifact  `json:"artifact"`
	LastTraining      time.Time `json:"last_training,omitempty"`
	ModelAccuracy     *float64  `json:"model_accuracy,omitempty"`
	EmpiricalAccuracy *float64  `json:"empirical_accuracy,omitempty"`
}

// Info is the diagnostic surface for the current model.
type Info struct {
	ModelType         ModelType `json:"model_type"`
	SelectedName      string    `json:"selected_name,omitempty"`
	Accuracy          *float64  `json:"accuracy,omitempty"`
	EmpiricalAccuracy *float64  `json:"empirical_accuracy,omitempty"`
	LastTraining      time.Time `json:"last_training,omitempty"`
	SampleCount       int       `json:"sample_count"`
	BackendAvailable  bool      `json:"backend_available"`

	// Per-variant detail, one of the two below depending on the artifact.
	Coefficients       []float64 `json:"model_coefficients,omitempty"`
	Intercept          *float64  `json:"model_intercept,omitempty"`
	FeatureImportances []float64 `json:"feature_importances,omitempty"`
}

// Predictor owns one device's ModelState: it trains candidate regressors,
// selects whichever model performs best on held-out data, and runs inference
// with empirical fallback. Training swaps the state atomically, so readers
// never observe a partially trained model.
type Predictor struct {
	deviceID  string
	empirical Empirical
	backend   Backend
	store     StateStore // may be nil

	mu    sync.RWMutex
	state State

	nowFunc func() time.Time
}

// NewPredictor creates a predictor in the empirical-only initial state.
func NewPredictor(deviceID string, cfg Config, backend Backend, store StateStore) *Predictor {
	return &Predictor{
		deviceID:  deviceID,
		empirical: NewEmpirical(cfg),
		backend:   backend,
		store:     store,
		state:     State{SelectedType: TypeEmpirical},
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the predictor's clock. Used by tests.
func (p *Predictor) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	p.nowFunc = now
	p.mu.Unlock()
}

// LoadState restores persisted model state. A corrupt or missing blob
// degrades to the empirical model with a warning; it never fails the caller.
func (p *Predictor) LoadState() {
	if p.store == nil {
		return
	}

	blob, err := p.store.LoadState(p.deviceID)
	if err != nil {
		log.Printf("Warning: failed to load model state for %s: %v", p.deviceID, err)
		return
	}
	if blob == nil {
		return
	}

	var st State
	if err := json.Unmarshal(blob, &st); err != nil {
		log.Printf("Warning: corrupt model state for %s, using empirical model: %v", p.deviceID, err)
		return
	}
	if st.SelectedType == "" {
		st.SelectedType = TypeEmpirical
	}

	p.mu.Lock()
	p.state = st
	p.mu.Unlock()

	acc := 0.0
	if st.ModelAccuracy != nil {
		acc = *st.ModelAccuracy
	}
	log.Printf("[Model] %s: loaded %s model (accuracy %.3f)", p.deviceID, st.SelectedType, acc)
}

// State returns a copy of the current model state.
func (p *Predictor) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// PredictRate forecasts the charge rate for the given conditions. When a
// learned model is selected it is used; any inference failure falls back to
// the empirical model with a warning. Forecasting never hard-fails.
func (p *Predictor) PredictRate(c Conditions) float64 {
	p.mu.RLock()
	st := p.state
	p.mu.RUnlock()

	if st.SelectedType == TypeLearned {
		rate, err := st.Artifact.Predict(featureVector(c))
		if err == nil {
			if rate < p.empirical.cfg.MinRate {
				rate = p.empirical.cfg.MinRate
			}
			return rate
		}
		log.Printf("Warning: learned-model inference failed for %s, falling back to empirical: %v", p.deviceID, err)
	}
	return p.empirical.PredictRate(c)
}

// Train fits the candidate regressors on historical samples, evaluates them
// and the empirical baseline on a held-out split, and publishes whichever
// wins. Returns false with a nil error when there is too little data or no
// backend (a valid skip); a non-nil error means the run failed and the
// previous state is untouched.
func (p *Predictor) Train(samples []history.Sample) (bool, error) {
	if !p.backend.Available() {
		return false, nil
	}

	X, y := PrepareTrainingSet(samples)
	if len(X) < MinSamplesForTraining {
		log.Printf("[Model] %s: insufficient samples for training (%d < %d)",
			p.deviceID, len(X), MinSamplesForTraining)
		return false, nil
	}

	XTrain, XTest, yTrain, yTest := trainTestSplit(X, y, heldOutFraction, 42)

	candidates, err := p.backend.Fit(XTrain, yTrain)
	if err != nil {
		return false, fmt.Errorf("fit candidates for %s: %w", p.deviceID, err)
	}

	type scored struct {
		name     string
		artifact Artifact
		r2       float64
		mse      float64
	}
	options := make([]scored, 0, len(candidates)+1)

	predicted := make([]float64, len(XTest))
	for _, cand := range candidates {
		for i, features := range XTest {
			v, err := cand.Artifact.Predict(features)
			if err != nil {
				return false, fmt.Errorf("evaluate %s for %s: %w", cand.Name, p.deviceID, err)
			}
			predicted[i] = v
		}
		options = append(options, scored{
			name:     cand.Name,
			artifact: cand.Artifact,
			r2:       r2Score(yTest, predicted),
			mse:      meanSquaredError(yTest, predicted),
		})
	}

	// The empirical formula is always scored on the same split, as a
	// zero-parameter baseline.
	for i, features := range XTest {
		predicted[i] = p.empirical.PredictRate(conditionsFromFeatures(features))
	}
	options = append(options, scored{
		name: "empirical",
		r2:   r2Score(yTest, predicted),
		mse:  meanSquaredError(yTest, predicted),
	})

	// Highest R² wins; strict comparison keeps first-listed precedence on
	// ties.
	best := options[0]
	for _, opt := range options[1:] {
		if opt.r2 > best.r2 {
			best = opt
		}
	}

	var scoresLog string
	for _, opt := range options {
		scoresLog += fmt.Sprintf(" %s R²=%.3f MSE=%.4f", opt.name, opt.r2, opt.mse)
	}
	log.Printf("[Model] %s: trained on %d rows:%s", p.deviceID, len(XTrain), scoresLog)

	st := State{
		SelectedType:      TypeLearned,
		SelectedName:      best.name,
		Artifact:          best.artifact,
		LastTraining:      p.now(),
		ModelAccuracy:     &best.r2,
		EmpiricalAccuracy: &options[len(options)-1].r2,
	}
	if best.name == "empirical" {
		st.SelectedType = TypeEmpirical
		st.Artifact = Artifact{}
	}

	p.mu.Lock()
	p.state = st
	p.mu.Unlock()

	log.Printf("[Model] %s: selected %s model (R²=%.3f)", p.deviceID, best.name, best.r2)

	// Persistence failure is a warning: the in-memory selection stands.
	if err := p.saveState(st); err != nil {
		log.Printf("Warning: failed to persist model state for %s: %v", p.deviceID, err)
	}
	return true, nil
}

func (p *Predictor) saveState(st State) error {
	if p.store == nil {
		return nil
	}
	blob, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return p.store.SaveState(p.deviceID, blob)
}

// ShouldRetrain reports whether a training run is due given the current
// history size.
func (p *Predictor) ShouldRetrain(historyCount int, now time.Time) bool {
	if !p.backend.Available() || historyCount < MinSamplesForTraining {
		return false
	}

	p.mu.RLock()
	last := p.state.LastTraining
	p.mu.RUnlock()

	if last.IsZero() {
		return true
	}
	return now.Sub(last) > RetrainInterval
}

// Info reports the current model selection for diagnostics.
func (p *Predictor) Info(sampleCount int) Info {
	p.mu.RLock()
	st := p.state
	p.mu.RUnlock()

	info := Info{
		ModelType:         st.SelectedType,
		SelectedName:      st.SelectedName,
		Accuracy:          st.ModelAccuracy,
		EmpiricalAccuracy: st.EmpiricalAccuracy,
		LastTraining:      st.LastTraining,
		SampleCount:       sampleCount,
		BackendAvailable:  p.backend.Available(),
	}

	switch st.Artifact.Kind {
	case ArtifactLinear:
		if st.Artifact.Linear != nil {
			info.Coefficients = st.Artifact.Linear.Coefficients
			intercept := st.Artifact.Linear.Intercept
			info.Intercept = &intercept
		}
	case ArtifactForest:
		if st.Artifact.Forest != nil {
			info.FeatureImportances = st.Artifact.Forest.FeatureImportances
		}
	}
	return info
}

// DeleteState removes the persisted model artifact, used when a device is
// deregistered.
func (p *Predictor) DeleteState() {
	if p.store == nil {
		return
	}
	if err := p.store.DeleteState(p.deviceID); err != nil {
		log.Printf("Warning: failed to delete model state for %s: %v", p.deviceID, err)
	}
}

func (p *Predictor) now() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nowFunc()
}
