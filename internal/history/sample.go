package history

import "time"

// Sample is one timestamped observation of battery, environment and charger
// state for a device. Optional sensor fields are pointers so that absent
// readings are omitted from the persisted form entirely rather than stored
// as nulls.
type Sample struct {
	Timestamp         time.Time `json:"timestamp"`
	BatteryPct        float64   `json:"battery_pct"`
	Temperature       *float64  `json:"temperature,omitempty"`
	Humidity          *float64  `json:"humidity,omitempty"`
	RatePctPerMin     *float64  `json:"rate_pct_per_min,omitempty"`
	ChargerPowerW     *float64  `json:"charger_power_w,omitempty"`
	OptimizedCharging *bool     `json:"optimized_charging,omitempty"`
	BatteryHealth     *float64  `json:"battery_health,omitempty"`
}

// Float returns a pointer to v, for filling optional Sample fields.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for filling optional Sample fields.
func Bool(v bool) *bool { return &v }
