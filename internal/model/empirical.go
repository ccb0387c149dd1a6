package model

// Config holds the tunable constants of the empirical charging model. The
// fast/slow split approximates the canonical two-stage constant-current /
// constant-voltage charge curve.
type Config struct {
	FastRate            float64 // %/min below the fast-charge threshold
	SlowRate            float64 // %/min at or above it
	FastChargeThreshold float64 // battery %

	TempHighThreshold float64 // °C above which charging is derated
	TempReductionMin  float64
	TempReductionMax  float64

	HealthLowThreshold    float64 // battery health % below which the flat derate applies
	HealthReductionFactor float64

	PowerBaselineW float64 // charger wattage that maps to a 1.0 power factor
	PowerFactorCap float64

	MinRate float64 // floor, keeps downstream division well-defined
}

// DefaultConfig returns the hand-tuned empirical model constants.
func DefaultConfig() Config {
	return Config{
		FastRate:              0.55,
		SlowRate:              0.25,
		FastChargeThreshold:   80.0,
		TempHighThreshold:     30.0,
		TempReductionMin:      0.10,
		TempReductionMax:      0.15,
		HealthLowThreshold:    90.0,
		HealthReductionFactor: 0.90,
		PowerBaselineW:        20.0,
		PowerFactorCap:        2.0,
		MinRate:               0.01,
	}
}

// Conditions are the current readings a rate prediction is made from.
// Optional fields are nil when the sensor is not available.
type Conditions struct {
	BatteryPct        float64
	Temperature       *float64
	Humidity          *float64
	ChargerPowerW     *float64
	BatteryHealth     *float64
	OptimizedCharging *bool
}

// Empirical is the closed-form physical charging model. It is pure: no state,
// no I/O, deterministic given inputs, which makes it a reliable fallback.
type Empirical struct {
	cfg Config
}

// NewEmpirical creates an empirical predictor with the given constants.
func NewEmpirical(cfg Config) Empirical {
	return Empirical{cfg: cfg}
}

// PredictRate maps current conditions to a predicted charge rate in %/minute.
func (e Empirical) PredictRate(c Conditions) float64 {
	cfg := e.cfg

	base := cfg.FastRate
	if c.BatteryPct >= cfg.FastChargeThreshold {
		base = cfg.SlowRate
	}

	correction := 1.0

	// Variable temperature derate: TempReductionMin at the threshold, growing
	// linearly to the cap 10°C above it.
	if c.Temperature != nil && *c.Temperature > cfg.TempHighThreshold {
		excess := *c.Temperature - cfg.TempHighThreshold
		reduction := cfg.TempReductionMin + excess*(cfg.TempReductionMax-cfg.TempReductionMin)/10.0
		if reduction < cfg.TempReductionMin {
			reduction = cfg.TempReductionMin
		}
		if reduction > cfg.TempReductionMax {
			reduction = cfg.TempReductionMax
		}
		correction *= 1.0 - reduction
	}

	// Flat health derate. Deliberately not scaled by how far below the
	// threshold the health is.
	if c.BatteryHealth != nil && *c.BatteryHealth < cfg.HealthLowThreshold {
		correction *= cfg.HealthReductionFactor
	}

	// Optimization derate models charge-limiting behavior above 80%.
	if c.OptimizedCharging != nil && *c.OptimizedCharging && c.BatteryPct >= cfg.FastChargeThreshold {
		correction *= 0.5
	}

	// Linear power scaling relative to the baseline charger, capped to avoid
	// unrealistic extrapolation for very high-power chargers.
	if c.ChargerPowerW != nil {
		factor := *c.ChargerPowerW / cfg.PowerBaselineW
		if factor > cfg.PowerFactorCap {
			factor = cfg.PowerFactorCap
		}
		correction *= factor
	}

	rate := base * correction
	if rate < cfg.MinRate {
		rate = cfg.MinRate
	}
	return rate
}
