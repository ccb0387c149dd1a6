package engine

import (
	"math"
	"testing"
	"time"

	"github.com/geckom/smartcharge-predictor/internal/events"
	"github.com/geckom/smartcharge-predictor/internal/history"
	"github.com/geckom/smartcharge-predictor/internal/model"
)

var engineEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// testEngine wires an engine against in-memory stores and a fake clock.
func testEngine(t *testing.T, cfg DeviceConfig, bus *events.Bus) (*Engine, func(d time.Duration)) {
	t.Helper()

	now := engineEpoch
	clock := func() time.Time { return now }

	store := history.NewStore(nil, time.Hour)
	store.SetNowFunc(clock)

	predictor := model.NewPredictor("laptop", model.DefaultConfig(), model.NewBuiltinBackend(42), nil)

	eng := New("laptop", cfg, store, predictor, bus)
	eng.SetNowFunc(clock)

	return eng, func(d time.Duration) { now = now.Add(d) }
}

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

// ── Forecasting ─────────────────────────────────────────────────────────

func TestUpdateProducesForecast(t *testing.T) {
	eng, _ := testEngine(t, DefaultDeviceConfig(), nil)

	f := eng.Update(Reading{BatteryPct: 50}, true)
	if f == nil {
		t.Fatal("Expected a forecast")
	}
	if f.DeviceID != "laptop" || f.BatteryPct != 50 {
		t.Errorf("Unexpected forecast identity: %+v", f)
	}
	if f.PredictedRate != 0.55 {
		t.Errorf("Expected the empirical rate 0.55, got %v", f.PredictedRate)
	}
	wantRemaining := 50 / 0.55
	if math.Abs(f.TimeRemainingMin-wantRemaining) > 1e-9 {
		t.Errorf("Expected %v minutes remaining, got %v", wantRemaining, f.TimeRemainingMin)
	}
	if !f.GeneratedAt.Equal(engineEpoch) {
		t.Errorf("Expected GeneratedAt %v, got %v", engineEpoch, f.GeneratedAt)
	}
	wantETA := engineEpoch.Add(time.Duration(wantRemaining * float64(time.Minute)))
	if !f.ETA.Equal(wantETA) {
		t.Errorf("Expected ETA %v, got %v", wantETA, f.ETA)
	}
	if f.InstantRate != nil {
		t.Error("The first reading has no previous sample to measure a rate from")
	}
	if f.Charging {
		t.Error("A single reading gives no evidence of charging")
	}
	if f.ModelInfo.ModelType != model.TypeEmpirical {
		t.Errorf("Expected empirical model info, got %s", f.ModelInfo.ModelType)
	}
}

func TestUpdateDegradedReading(t *testing.T) {
	eng, _ := testEngine(t, DefaultDeviceConfig(), nil)

	if f := eng.Update(Reading{}, false); f != nil {
		t.Error("Expected no forecast before the first successful reading")
	}

	good := eng.Update(Reading{BatteryPct: 60}, true)
	degraded := eng.Update(Reading{}, false)
	if degraded != good {
		t.Error("A failed reading must return the last-known forecast")
	}
	if eng.Forecast() != good {
		t.Error("A failed reading must not replace the stored forecast")
	}
}

func TestInstantRateAndCharging(t *testing.T) {
	eng, advance := testEngine(t, DefaultDeviceConfig(), nil)

	eng.Update(Reading{BatteryPct: 50}, true)
	advance(2 * time.Minute)
	f := eng.Update(Reading{BatteryPct: 51}, true)

	if f.InstantRate == nil || *f.InstantRate != 0.5 {
		t.Fatalf("Expected measured rate 0.5, got %v", f.InstantRate)
	}
	if !f.Charging {
		t.Error("A rising battery level must report charging")
	}
}

func TestDrainingNotCharging(t *testing.T) {
	eng, advance := testEngine(t, DefaultDeviceConfig(), nil)

	eng.Update(Reading{BatteryPct: 60}, true)
	advance(2 * time.Minute)
	f := eng.Update(Reading{BatteryPct: 58}, true)

	if f.InstantRate != nil {
		t.Errorf("A draining battery has no charge rate, got %v", f.InstantRate)
	}
	if f.Charging {
		t.Error("A falling battery level must not report charging")
	}
}

func TestFullBattery(t *testing.T) {
	eng, _ := testEngine(t, DefaultDeviceConfig(), nil)

	f := eng.Update(Reading{BatteryPct: 100}, true)
	if f.TimeRemainingMin != 0 {
		t.Errorf("A full battery has nothing remaining, got %v", f.TimeRemainingMin)
	}
	if f.Charging {
		t.Error("A full battery must not report charging")
	}
	if !f.ETA.Equal(f.GeneratedAt) {
		t.Error("Expected an immediate ETA for a full battery")
	}
}

// ── Sample recording ────────────────────────────────────────────────────

func TestChangeTriggeredRecording(t *testing.T) {
	eng, advance := testEngine(t, DefaultDeviceConfig(), nil)

	eng.Update(Reading{BatteryPct: 50}, true)
	advance(time.Minute)
	eng.Update(Reading{BatteryPct: 50}, true) // unchanged, not recorded
	advance(time.Minute)
	eng.Update(Reading{BatteryPct: 51}, true)

	if got := eng.store.Count("laptop"); got != 2 {
		t.Errorf("Expected 2 recorded samples, got %d", got)
	}
}

func TestLearningDisabledRecordsNothing(t *testing.T) {
	cfg := DefaultDeviceConfig()
	cfg.LearnFromHistory = false
	eng, advance := testEngine(t, cfg, nil)

	eng.Update(Reading{BatteryPct: 50}, true)
	advance(time.Minute)
	f := eng.Update(Reading{BatteryPct: 51}, true)

	if got := eng.store.Count("laptop"); got != 0 {
		t.Errorf("Expected no samples with learning disabled, got %d", got)
	}
	if f == nil || f.PredictedRate != 0.55 {
		t.Error("Forecasting must keep working with learning disabled")
	}
}

func TestSetLearnFromHistory(t *testing.T) {
	cfg := DefaultDeviceConfig()
	cfg.LearnFromHistory = false
	eng, _ := testEngine(t, cfg, nil)

	eng.SetLearnFromHistory(true)
	eng.Update(Reading{BatteryPct: 50}, true)

	if got := eng.store.Count("laptop"); got != 1 {
		t.Errorf("Expected recording after enabling learning, got %d samples", got)
	}
}

func TestRecordedSampleCarriesConditions(t *testing.T) {
	cfg := DefaultDeviceConfig()
	cfg.BatteryHealth = 85
	eng, _ := testEngine(t, cfg, nil)

	eng.Update(Reading{
		BatteryPct:    42,
		Temperature:   fptr(31),
		ChargerPowerW: fptr(65),
	}, true)

	latest, ok := eng.store.Latest("laptop")
	if !ok {
		t.Fatal("Expected a recorded sample")
	}
	if latest.Temperature == nil || *latest.Temperature != 31 {
		t.Errorf("Expected temperature 31, got %v", latest.Temperature)
	}
	if latest.ChargerPowerW == nil || *latest.ChargerPowerW != 65 {
		t.Errorf("Expected the measured charger power, got %v", latest.ChargerPowerW)
	}
	if latest.BatteryHealth == nil || *latest.BatteryHealth != 85 {
		t.Errorf("Expected the configured battery health, got %v", latest.BatteryHealth)
	}
}

// ── Conditions ──────────────────────────────────────────────────────────

func TestMeasuredPowerOverridesConfig(t *testing.T) {
	cfg := DefaultDeviceConfig()
	cfg.ChargerPowerW = 20
	eng, _ := testEngine(t, cfg, nil)

	// 30W measured: 0.55 * 30/20 = 0.825.
	f := eng.Update(Reading{BatteryPct: 50, ChargerPowerW: fptr(30)}, true)
	if f.PredictedRate != 0.825 {
		t.Errorf("Expected the measured power to drive the rate, got %v", f.PredictedRate)
	}
}

func TestOptimizedFromReading(t *testing.T) {
	eng, _ := testEngine(t, DefaultDeviceConfig(), nil)

	// Optimized charging at 85%: 0.25 * 0.5 = 0.125.
	f := eng.Update(Reading{BatteryPct: 85, OptimizedCharging: bptr(true)}, true)
	if f.PredictedRate != 0.125 {
		t.Errorf("Expected the optimized slowdown, got %v", f.PredictedRate)
	}
}

func TestOptimizedFromConfig(t *testing.T) {
	cfg := DefaultDeviceConfig()
	cfg.OptimizedCharging = true
	eng, _ := testEngine(t, cfg, nil)

	f := eng.Update(Reading{BatteryPct: 85}, true)
	if f.PredictedRate != 0.125 {
		t.Errorf("Expected the configured optimized slowdown, got %v", f.PredictedRate)
	}
}

func TestOptimizedBehavioralInference(t *testing.T) {
	eng, advance := testEngine(t, DefaultDeviceConfig(), nil)

	// Three samples stalled near the fast-charge threshold.
	for _, pct := range []float64{79, 80, 81} {
		eng.Update(Reading{BatteryPct: pct}, true)
		advance(time.Minute)
	}

	f := eng.Update(Reading{BatteryPct: 81.5}, true)
	if f.PredictedRate != 0.125 {
		t.Errorf("Expected inferred optimized charging, got rate %v", f.PredictedRate)
	}

	// The inference needs the full window near the threshold.
	eng2, advance2 := testEngine(t, DefaultDeviceConfig(), nil)
	for _, pct := range []float64{50, 80, 81} {
		eng2.Update(Reading{BatteryPct: pct}, true)
		advance2(time.Minute)
	}
	if f := eng2.Update(Reading{BatteryPct: 81.5}, true); f.PredictedRate == 0.125 {
		t.Error("A sample outside the threshold window must block the inference")
	}
}

// ── Events ──────────────────────────────────────────────────────────────

func TestPublishesTransitions(t *testing.T) {
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(func(e events.Event) { got = append(got, e) },
		events.ChargeStarted, events.ChargeComplete)

	var forecasts int
	bus.Subscribe(func(e events.Event) { forecasts++ }, events.ForecastUpdated)

	eng, advance := testEngine(t, DefaultDeviceConfig(), bus)

	for _, pct := range []float64{97, 98, 99, 100} {
		eng.Update(Reading{BatteryPct: pct}, true)
		advance(time.Minute)
	}

	if forecasts != 4 {
		t.Errorf("Expected a forecast event per update, got %d", forecasts)
	}
	if len(got) != 2 {
		t.Fatalf("Expected start and complete transitions, got %d events: %+v", len(got), got)
	}
	if got[0].Type != events.ChargeStarted || got[0].DeviceID != "laptop" {
		t.Errorf("Unexpected first transition: %+v", got[0])
	}
	if got[1].Type != events.ChargeComplete {
		t.Errorf("Unexpected second transition: %+v", got[1])
	}
}

func TestChargeStartedFiresOncePerSession(t *testing.T) {
	bus := events.NewBus()
	var starts int
	bus.Subscribe(func(events.Event) { starts++ }, events.ChargeStarted)

	eng, advance := testEngine(t, DefaultDeviceConfig(), bus)
	for _, pct := range []float64{50, 51, 52, 53} {
		eng.Update(Reading{BatteryPct: pct}, true)
		advance(time.Minute)
	}

	if starts != 1 {
		t.Errorf("Expected one charge-started edge, got %d", starts)
	}
}

func TestForecastEventCarriesPayload(t *testing.T) {
	bus := events.NewBus()
	var payload any
	bus.Subscribe(func(e events.Event) { payload = e.Payload }, events.ForecastUpdated)

	eng, _ := testEngine(t, DefaultDeviceConfig(), bus)
	f := eng.Update(Reading{BatteryPct: 50}, true)

	if payload != f {
		t.Error("Expected the forecast event payload to be the emitted forecast")
	}
}

// ── Training ────────────────────────────────────────────────────────────

func TestRetrainInsufficientData(t *testing.T) {
	eng, _ := testEngine(t, DefaultDeviceConfig(), nil)
	eng.Update(Reading{BatteryPct: 50}, true)

	trained, err := eng.Retrain()
	if err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}
	if trained {
		t.Error("Expected a skip with too little history")
	}
}

func TestRetrainConflict(t *testing.T) {
	eng, _ := testEngine(t, DefaultDeviceConfig(), nil)

	eng.training.Store(true)
	if _, err := eng.Retrain(); err == nil {
		t.Error("Expected an error while a run is already in flight")
	}
	eng.training.Store(false)
	if _, err := eng.Retrain(); err != nil {
		t.Errorf("Expected the flag to clear, got %v", err)
	}
}

func TestRetrainTrainsAndPublishes(t *testing.T) {
	bus := events.NewBus()
	var done []events.Event
	bus.Subscribe(func(e events.Event) { done = append(done, e) }, events.TrainingComplete)

	eng, _ := testEngine(t, DefaultDeviceConfig(), bus)

	// Seeded directly: feeding readings through Update would kick off the
	// automatic background retrain and race the explicit one below.
	for i := 0; i < 40; i++ {
		pct := float64(10 + i*2)
		rate := 0.7 - 0.005*pct
		eng.store.Record("laptop", history.Sample{
			BatteryPct:    pct,
			RatePctPerMin: &rate,
		})
	}

	trained, err := eng.Retrain()
	if err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}
	if !trained {
		t.Fatal("Expected a completed training run")
	}
	if len(done) != 1 {
		t.Fatalf("Expected one training-complete event, got %d", len(done))
	}
	if done[0].Metadata["selected"] == "" {
		t.Error("Expected the selected model in the event metadata")
	}
	if eng.Predictor().State().LastTraining.IsZero() {
		t.Error("Expected the predictor to record the training time")
	}
}

// ── Trigger ─────────────────────────────────────────────────────────────

type stubReader struct {
	reading Reading
	ok      bool
}

func (r stubReader) Read(string) (Reading, bool) { return r.reading, r.ok }

func TestTrigger(t *testing.T) {
	eng, _ := testEngine(t, DefaultDeviceConfig(), nil)

	eng.Trigger(stubReader{ok: false})
	if eng.Forecast() != nil {
		t.Error("A failed sensor read must not produce a forecast")
	}

	eng.Trigger(stubReader{reading: Reading{BatteryPct: 64}, ok: true})
	f := eng.Forecast()
	if f == nil || f.BatteryPct != 64 {
		t.Fatalf("Expected a forecast at 64%%, got %+v", f)
	}
}
