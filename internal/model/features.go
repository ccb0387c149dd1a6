package model

import "github.com/geckom/smartcharge-predictor/internal/history"

// Default values substituted for missing sensors when building feature
// vectors. Typical room conditions rather than propagated missingness.
const (
	DefaultTemperature   = 20.0
	DefaultHumidity      = 50.0
	DefaultChargerPowerW = 20.0
	DefaultBatteryHealth = 100.0
)

// NumFeatures is the width of the regression feature vector:
// [battery_pct, temperature, humidity, charger_power_w, battery_health, optimized].
const NumFeatures = 6

// FeatureNames labels feature-vector positions for model diagnostics.
var FeatureNames = []string{
	"battery_pct", "temperature", "humidity",
	"charger_power_w", "battery_health", "optimized_charging",
}

func featureVector(c Conditions) []float64 {
	f := []float64{
		c.BatteryPct,
		DefaultTemperature,
		DefaultHumidity,
		DefaultChargerPowerW,
		DefaultBatteryHealth,
		0,
	}
	if c.Temperature != nil {
		f[1] = *c.Temperature
	}
	if c.Humidity != nil {
		f[2] = *c.Humidity
	}
	if c.ChargerPowerW != nil {
		f[3] = *c.ChargerPowerW
	}
	if c.BatteryHealth != nil {
		f[4] = *c.BatteryHealth
	}
	if c.OptimizedCharging != nil && *c.OptimizedCharging {
		f[5] = 1
	}
	return f
}

func conditionsFromFeatures(f []float64) Conditions {
	opt := f[5] != 0
	return Conditions{
		BatteryPct:        f[0],
		Temperature:       &f[1],
		Humidity:          &f[2],
		ChargerPowerW:     &f[3],
		BatteryHealth:     &f[4],
		OptimizedCharging: &opt,
	}
}

// PrepareTrainingSet extracts (features, observed rate) pairs from history.
// Only samples with a present, strictly positive rate are used: a logged
// decrease means the device was unplugged, not charging slower.
func PrepareTrainingSet(samples []history.Sample) (X [][]float64, y []float64) {
	for _, s := range samples {
		if s.RatePctPerMin == nil || *s.RatePctPerMin <= 0 {
			continue
		}
		X = append(X, featureVector(Conditions{
			BatteryPct:        s.BatteryPct,
			Temperature:       s.Temperature,
			Humidity:          s.Humidity,
			ChargerPowerW:     s.ChargerPowerW,
			BatteryHealth:     s.BatteryHealth,
			OptimizedCharging: s.OptimizedCharging,
		}))
		y = append(y, *s.RatePctPerMin)
	}
	return X, y
}
