package version

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		v1, v2 string
		want   int
	}{
		{"equal", "1.2.3", "1.2.3", 0},
		{"equal with prefix", "v1.2.3", "1.2.3", 0},
		{"patch newer", "1.2.3", "1.2.4", -1},
		{"minor newer", "1.2.9", "1.3.0", -1},
		{"major newer", "1.9.9", "2.0.0", -1},
		{"older", "2.0.0", "1.9.9", 1},
		{"stable beats rc", "1.0.0", "1.0.0-rc.1", 1},
		{"rc beats beta", "1.0.0-beta.2", "1.0.0-rc.1", -1},
		{"beta beats alpha", "1.0.0-alpha.3", "1.0.0-beta.1", -1},
		{"later rc wins", "1.0.0-rc.1", "1.0.0-rc.2", -1},
		{"missing patch", "1.2", "1.2.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.v1, tt.v2); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  v1.2.3 "); got != "1.2.3" {
		t.Errorf("Expected 1.2.3, got %q", got)
	}
	if c := NewChecker("V2.0.0", "geckom", "smartcharge-predictor"); c.CurrentVersion() != "2.0.0" {
		t.Errorf("Expected the checker to normalize its version, got %q", c.CurrentVersion())
	}
}
