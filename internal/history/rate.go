package history

import (
	"errors"
	"time"
)

// StaleSampleWindow is the maximum age of the most recent sample for it to be
// usable in an instantaneous rate estimate.
const StaleSampleWindow = 5 * time.Minute

var (
	// ErrInsufficientData means fewer than two samples exist for the device.
	// A valid "skip" outcome, not a failure.
	ErrInsufficientData = errors.New("insufficient samples for rate estimate")

	// ErrStaleReading means the latest sample is outside the freshness window
	// or the clock moved backwards.
	ErrStaleReading = errors.New("latest sample too old or clock skewed")

	// ErrNotCharging means the battery percentage has not increased since the
	// latest sample.
	ErrNotCharging = errors.New("battery not increasing")
)

// EstimateRate derives an instantaneous charge rate in %/minute from the most
// recent sample and the current battery reading. This is deliberately a
// two-point estimator, not a windowed average: charging curves are
// piecewise-linear within short bands, so recency beats smoothing.
func (s *Store) EstimateRate(deviceID string, currentBatteryPct float64, now time.Time) (float64, error) {
	s.mu.RLock()
	h := s.histories[deviceID]
	var latest Sample
	if len(h) > 0 {
		latest = h[len(h)-1]
	}
	count := len(h)
	s.mu.RUnlock()

	if count < 2 {
		return 0, ErrInsufficientData
	}

	elapsed := now.Sub(latest.Timestamp)
	if elapsed <= 0 || elapsed > StaleSampleWindow {
		return 0, ErrStaleReading
	}

	diff := currentBatteryPct - latest.BatteryPct
	if diff <= 0 {
		return 0, ErrNotCharging
	}

	rate := diff / elapsed.Minutes()
	if rate < 0 {
		rate = 0
	}
	return rate, nil
}
