package model

import (
	"math"
	"testing"
)

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

func TestPredictRateScenarios(t *testing.T) {
	e := NewEmpirical(DefaultConfig())

	tests := []struct {
		name string
		c    Conditions
		want float64
	}{
		{
			name: "fast charge with no sensors",
			c:    Conditions{BatteryPct: 50},
			want: 0.55,
		},
		{
			name: "slow charge at the threshold",
			c:    Conditions{BatteryPct: 80},
			want: 0.25,
		},
		{
			name: "just below the threshold stays fast",
			c:    Conditions{BatteryPct: 79.9},
			want: 0.55,
		},
		{
			name: "optimized charging above threshold halves the rate",
			c:    Conditions{BatteryPct: 85, OptimizedCharging: bptr(true)},
			want: 0.125,
		},
		{
			name: "optimized charging below threshold has no effect",
			c:    Conditions{BatteryPct: 50, OptimizedCharging: bptr(true)},
			want: 0.55,
		},
		{
			name: "hot battery derated linearly",
			c:    Conditions{BatteryPct: 50, Temperature: fptr(35)},
			want: 0.48125, // 0.55 * (1 - 0.125)
		},
		{
			name: "temperature derate capped",
			c:    Conditions{BatteryPct: 50, Temperature: fptr(60)},
			want: 0.4675, // 0.55 * (1 - 0.15)
		},
		{
			name: "cool battery not derated",
			c:    Conditions{BatteryPct: 50, Temperature: fptr(25)},
			want: 0.55,
		},
		{
			name: "degraded health applies flat derate",
			c:    Conditions{BatteryPct: 50, BatteryHealth: fptr(85)},
			want: 0.495, // 0.55 * 0.9
		},
		{
			name: "health at the threshold is not derated",
			c:    Conditions{BatteryPct: 50, BatteryHealth: fptr(90)},
			want: 0.55,
		},
		{
			name: "high-power charger scales up",
			c:    Conditions{BatteryPct: 50, ChargerPowerW: fptr(30)},
			want: 0.825, // 0.55 * 1.5
		},
		{
			name: "power factor capped at 2x",
			c:    Conditions{BatteryPct: 50, ChargerPowerW: fptr(100)},
			want: 1.1, // 0.55 * 2.0
		},
		{
			name: "weak charger scales down",
			c:    Conditions{BatteryPct: 50, ChargerPowerW: fptr(10)},
			want: 0.275, // 0.55 * 0.5
		},
		{
			name: "tiny charger floors at the minimum rate",
			c:    Conditions{BatteryPct: 50, ChargerPowerW: fptr(0.1)},
			want: 0.01,
		},
		{
			name: "all derates stack multiplicatively",
			c: Conditions{
				BatteryPct:        85,
				Temperature:       fptr(35),
				BatteryHealth:     fptr(80),
				OptimizedCharging: bptr(true),
				ChargerPowerW:     fptr(30),
			},
			// 0.25 * 0.875 * 0.9 * 0.5 * 1.5
			want: 0.14765625,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.PredictRate(tt.c)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected rate %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPredictRateBeyondFull(t *testing.T) {
	e := NewEmpirical(DefaultConfig())

	// Firmware reporting above 100% is treated as any other slow-phase value.
	got := e.PredictRate(Conditions{BatteryPct: 102})
	if got != 0.25 {
		t.Errorf("Expected slow rate above 100%%, got %v", got)
	}
}

func TestFeatureVectorDefaults(t *testing.T) {
	f := featureVector(Conditions{BatteryPct: 55})
	want := []float64{55, DefaultTemperature, DefaultHumidity, DefaultChargerPowerW, DefaultBatteryHealth, 0}
	if len(f) != NumFeatures {
		t.Fatalf("Expected %d features, got %d", NumFeatures, len(f))
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("Feature %s: expected %v, got %v", FeatureNames[i], want[i], f[i])
		}
	}

	f = featureVector(Conditions{
		BatteryPct:        85,
		Temperature:       fptr(31),
		Humidity:          fptr(40),
		ChargerPowerW:     fptr(65),
		BatteryHealth:     fptr(92),
		OptimizedCharging: bptr(true),
	})
	want = []float64{85, 31, 40, 65, 92, 1}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("Feature %s: expected %v, got %v", FeatureNames[i], want[i], f[i])
		}
	}
}
