package history

import "time"

// FieldStats summarizes one optional sample field across a device's history.
type FieldStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Statistics summarizes a device's sample history.
type Statistics struct {
	TotalSamples int         `json:"total_samples"`
	FirstSample  time.Time   `json:"first_sample"`
	LastSample   time.Time   `json:"last_sample"`
	Rate         *FieldStats `json:"rate_stats,omitempty"`
	Temperature  *FieldStats `json:"temperature_stats,omitempty"`
}

// Statistics computes summary statistics over a device's history. The second
// return is false when the device has no samples.
func (s *Store) Statistics(deviceID string) (Statistics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[deviceID]
	if len(h) == 0 {
		return Statistics{}, false
	}

	stats := Statistics{
		TotalSamples: len(h),
		FirstSample:  h[0].Timestamp,
		LastSample:   h[len(h)-1].Timestamp,
	}

	var rates, temps []float64
	for _, sample := range h {
		if sample.RatePctPerMin != nil {
			rates = append(rates, *sample.RatePctPerMin)
		}
		if sample.Temperature != nil {
			temps = append(temps, *sample.Temperature)
		}
	}
	stats.Rate = fieldStats(rates)
	stats.Temperature = fieldStats(temps)
	return stats, true
}

func fieldStats(values []float64) *FieldStats {
	if len(values) == 0 {
		return nil
	}

	fs := FieldStats{Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		if v < fs.Min {
			fs.Min = v
		}
		if v > fs.Max {
			fs.Max = v
		}
		sum += v
	}
	fs.Mean = sum / float64(len(values))
	return &fs
}
