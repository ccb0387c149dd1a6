package engine

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geckom/smartcharge-predictor/internal/events"
	"github.com/geckom/smartcharge-predictor/internal/history"
	"github.com/geckom/smartcharge-predictor/internal/model"
)

// DeviceConfig is the per-device configuration the engine operates under.
type DeviceConfig struct {
	Name              string        `json:"name"`
	ChargerPowerW     float64       `json:"charger_power_w"`
	BatteryHealth     float64       `json:"battery_health"`
	OptimizedCharging bool          `json:"optimized_charging"`
	LearnFromHistory  bool          `json:"learn_from_history"`
	MaxSamples        int           `json:"max_samples"`
	ScanInterval      time.Duration `json:"scan_interval"`
}

// DefaultDeviceConfig returns the configuration a device is registered with
// when none is supplied.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		ChargerPowerW:    20.0,
		BatteryHealth:    100.0,
		LearnFromHistory: true,
		MaxSamples:       history.DefaultMaxSamples,
		ScanInterval:     time.Minute,
	}
}

// Reading is one poll of a device's sensors. Optional fields are nil when
// the sensor is unavailable.
type Reading struct {
	BatteryPct        float64  `json:"battery_pct"`
	Temperature       *float64 `json:"temperature,omitempty"`
	Humidity          *float64 `json:"humidity,omitempty"`
	ChargerPowerW     *float64 `json:"charger_power_w,omitempty"`
	OptimizedCharging *bool    `json:"optimized_charging,omitempty"`
}

// SensorReader supplies readings for a device. The second return is false
// when the source is unavailable or non-numeric; the engine then degrades to
// its last-known forecast.
type SensorReader interface {
	Read(deviceID string) (Reading, bool)
}

// Forecast is the engine's output for one update tick.
type Forecast struct {
	DeviceID         string     `json:"device_id"`
	BatteryPct       float64    `json:"battery_pct"`
	Charging         bool       `json:"charging"`
	InstantRate      *float64   `json:"instant_rate,omitempty"` // measured, diagnostic
	PredictedRate    float64    `json:"predicted_rate"`         // %/min from the active model
	TimeRemainingMin float64    `json:"time_remaining_min"`
	ETA              time.Time  `json:"eta"`
	GeneratedAt      time.Time  `json:"generated_at"`
	ModelInfo        model.Info `json:"model_info"`
}

// Engine drives forecasting for a single device: it consumes readings,
// records change-triggered samples, asks the active predictor for a rate and
// derives time-to-full. Updates are serialized; training runs out-of-band
// and never blocks a forecast.
type Engine struct {
	deviceID  string
	cfg       DeviceConfig
	store     *history.Store
	predictor *model.Predictor
	bus       *events.Bus // may be nil

	// runMu serializes update work; mu guards the coalescing flags.
	runMu    sync.Mutex
	mu       sync.Mutex
	updating bool
	pending  bool

	stateMu      sync.RWMutex
	lastForecast *Forecast

	training atomic.Bool
	nowFunc  func() time.Time
}

// New creates an engine for one device. The engine starts in the NoData
// state: Forecast() returns nil until the first successful update.
func New(deviceID string, cfg DeviceConfig, store *history.Store, predictor *model.Predictor, bus *events.Bus) *Engine {
	store.SetMaxSamples(deviceID, cfg.MaxSamples)
	return &Engine{
		deviceID:  deviceID,
		cfg:       cfg,
		store:     store,
		predictor: predictor,
		bus:       bus,
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the engine's clock. Used by tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	e.nowFunc = now
	e.mu.Unlock()
}

// DeviceID returns the device this engine forecasts for.
func (e *Engine) DeviceID() string { return e.deviceID }

// Config returns the engine's device configuration.
func (e *Engine) Config() DeviceConfig {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.cfg
}

// SetLearnFromHistory toggles sample recording and automatic retraining.
func (e *Engine) SetLearnFromHistory(enabled bool) {
	e.runMu.Lock()
	e.cfg.LearnFromHistory = enabled
	e.runMu.Unlock()
}

// Predictor exposes the engine's model predictor.
func (e *Engine) Predictor() *model.Predictor { return e.predictor }

// Forecast returns the last emitted forecast, or nil in the NoData state.
func (e *Engine) Forecast() *Forecast {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.lastForecast
}

// Trigger runs an update using the given reader. A trigger arriving while an
// update is in flight is coalesced into a single follow-up run rather than
// queued.
func (e *Engine) Trigger(reader SensorReader) {
	e.mu.Lock()
	if e.updating {
		e.pending = true
		e.mu.Unlock()
		return
	}
	e.updating = true
	e.mu.Unlock()

	for {
		reading, ok := reader.Read(e.deviceID)
		e.update(reading, ok)

		e.mu.Lock()
		if !e.pending {
			e.updating = false
			e.mu.Unlock()
			return
		}
		e.pending = false
		e.mu.Unlock()
	}
}

// Update runs one update tick with an externally supplied reading. ok=false
// marks the reading absent or malformed; the engine then keeps its prior
// state and returns the last-known forecast. Never returns an error: every
// failure degrades to the best available fallback.
func (e *Engine) Update(reading Reading, ok bool) *Forecast {
	return e.update(reading, ok)
}

func (e *Engine) update(reading Reading, ok bool) *Forecast {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !ok {
		return e.Forecast()
	}

	now := e.now()
	batteryPct := reading.BatteryPct

	// Instantaneous rate from the previous sample, before this reading is
	// recorded. Estimation failures are a valid "unknown", not errors.
	var instantRate *float64
	if rate, err := e.store.EstimateRate(e.deviceID, batteryPct, now); err == nil {
		instantRate = &rate
	}

	// A measured charger power wins over the configured rating.
	powerW := e.cfg.ChargerPowerW
	if reading.ChargerPowerW != nil {
		powerW = *reading.ChargerPowerW
	}

	optimized := e.optimizedStatus(reading, batteryPct)
	conditions := model.Conditions{
		BatteryPct:        batteryPct,
		Temperature:       reading.Temperature,
		Humidity:          reading.Humidity,
		ChargerPowerW:     history.Float(powerW),
		BatteryHealth:     history.Float(e.cfg.BatteryHealth),
		OptimizedCharging: history.Bool(optimized),
	}

	// Change-triggered recording: identical consecutive readings add no
	// information, so they are not stored.
	if e.cfg.LearnFromHistory {
		latest, exists := e.store.Latest(e.deviceID)
		if !exists || latest.BatteryPct != batteryPct {
			e.store.Record(e.deviceID, history.Sample{
				BatteryPct:        batteryPct,
				Temperature:       reading.Temperature,
				Humidity:          reading.Humidity,
				RatePctPerMin:     instantRate,
				ChargerPowerW:     history.Float(powerW),
				BatteryHealth:     history.Float(e.cfg.BatteryHealth),
				OptimizedCharging: history.Bool(optimized),
			})
		}
	}

	predictedRate := e.predictor.PredictRate(conditions)
	timeRemaining := timeRemainingMinutes(batteryPct, predictedRate)

	forecast := &Forecast{
		DeviceID:         e.deviceID,
		BatteryPct:       batteryPct,
		Charging:         e.isCharging(batteryPct, now),
		InstantRate:      instantRate,
		PredictedRate:    predictedRate,
		TimeRemainingMin: timeRemaining,
		ETA:              now.Add(time.Duration(timeRemaining * float64(time.Minute))),
		GeneratedAt:      now,
		ModelInfo:        e.predictor.Info(e.store.Count(e.deviceID)),
	}

	e.stateMu.Lock()
	previous := e.lastForecast
	e.lastForecast = forecast
	e.stateMu.Unlock()

	e.publishTransitions(previous, forecast)

	if e.cfg.LearnFromHistory && e.predictor.ShouldRetrain(e.store.Count(e.deviceID), now) {
		e.retrainAsync()
	}

	return forecast
}

// timeRemainingMinutes derives minutes until full charge. Zero when the rate
// is non-positive or the battery is already full.
func timeRemainingMinutes(batteryPct, rate float64) float64 {
	if rate <= 0 || batteryPct >= 100 {
		return 0
	}
	return (100 - batteryPct) / rate
}

// optimizedStatus resolves the optimized-charging flag: an explicit reading
// wins, then the configured flag, then behavioral inference — a battery
// sitting within ±2% of the fast-charge threshold for the last three samples
// is likely charge-limited.
func (e *Engine) optimizedStatus(reading Reading, batteryPct float64) bool {
	if reading.OptimizedCharging != nil {
		return *reading.OptimizedCharging
	}
	if e.cfg.OptimizedCharging {
		return true
	}

	const threshold = 80.0
	if batteryPct < threshold-2 || batteryPct > threshold+2 {
		return false
	}
	h := e.store.History(e.deviceID)
	if len(h) < 3 {
		return false
	}
	for _, s := range h[len(h)-3:] {
		if s.BatteryPct < threshold-2 || s.BatteryPct > threshold+2 {
			return false
		}
	}
	return true
}

// isCharging reports whether the device is actively charging: a fresh
// positive measured rate, or an increase across the last two samples.
// Readings at or beyond 100% count as not charging.
func (e *Engine) isCharging(batteryPct float64, now time.Time) bool {
	if batteryPct >= 100 {
		return false
	}

	if latest, ok := e.store.Latest(e.deviceID); ok {
		if latest.RatePctPerMin != nil && *latest.RatePctPerMin > 0 &&
			now.Sub(latest.Timestamp) < history.StaleSampleWindow {
			return true
		}
	}

	h := e.store.History(e.deviceID)
	if len(h) >= 2 {
		return h[len(h)-1].BatteryPct > h[len(h)-2].BatteryPct
	}
	return false
}

// retrainAsync starts a background training run unless one is already in
// flight. Completion swaps the model state atomically inside the predictor;
// a failed run leaves the previous model untouched.
func (e *Engine) retrainAsync() {
	if !e.training.CompareAndSwap(false, true) {
		return
	}

	samples := e.store.History(e.deviceID)
	go func() {
		defer e.training.Store(false)
		e.runTraining(samples)
	}()
}

// Retrain runs a training pass synchronously and reports whether a model was
// trained. Used by the explicit retrain service call.
func (e *Engine) Retrain() (bool, error) {
	if !e.training.CompareAndSwap(false, true) {
		return false, fmt.Errorf("training already in progress for %s", e.deviceID)
	}
	defer e.training.Store(false)
	return e.runTraining(e.store.History(e.deviceID))
}

func (e *Engine) runTraining(samples []history.Sample) (bool, error) {
	trained, err := e.predictor.Train(samples)
	switch {
	case err != nil:
		log.Printf("Warning: training failed for %s: %v", e.deviceID, err)
		e.publish(events.Event{
			Type:     events.TrainingFailed,
			Severity: events.SeverityWarning,
			DeviceID: e.deviceID,
			Message:  fmt.Sprintf("Model training failed for %s: %v", e.deviceID, err),
		})
	case trained:
		st := e.predictor.State()
		e.publish(events.Event{
			Type:     events.TrainingComplete,
			Severity: events.SeverityInfo,
			DeviceID: e.deviceID,
			Message:  fmt.Sprintf("Trained %s model for %s", st.SelectedName, e.deviceID),
			Metadata: map[string]string{"selected": st.SelectedName},
		})
	}
	return trained, err
}

func (e *Engine) publishTransitions(previous, current *Forecast) {
	e.publish(events.Event{
		Type:     events.ForecastUpdated,
		Severity: events.SeverityInfo,
		DeviceID: e.deviceID,
		Message:  fmt.Sprintf("%s at %.1f%%", e.deviceID, current.BatteryPct),
		Payload:  current,
	})

	wasCharging := previous != nil && previous.Charging
	if !wasCharging && current.Charging {
		e.publish(events.Event{
			Type:     events.ChargeStarted,
			Severity: events.SeverityInfo,
			DeviceID: e.deviceID,
			Message:  fmt.Sprintf("%s started charging at %.1f%%", e.deviceID, current.BatteryPct),
		})
	}
	if wasCharging && previous.BatteryPct < 100 && current.BatteryPct >= 100 {
		e.publish(events.Event{
			Type:     events.ChargeComplete,
			Severity: events.SeverityInfo,
			DeviceID: e.deviceID,
			Message:  fmt.Sprintf("%s fully charged", e.deviceID),
		})
	}
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func (e *Engine) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nowFunc()
}
