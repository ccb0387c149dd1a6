package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// ExportCSV writes a device's full history as CSV. The column set is the
// union of all fields present in any sample, sorted by name; rows are in
// chronological order with absent fields left empty.
func (s *Store) ExportCSV(deviceID string, w io.Writer) error {
	samples := s.History(deviceID)
	if len(samples) == 0 {
		return fmt.Errorf("no history for device %s", deviceID)
	}

	rows := make([]map[string]string, len(samples))
	columns := map[string]struct{}{}
	for i, sample := range samples {
		row := sampleFields(sample)
		rows[i] = row
		for col := range row {
			columns[col] = struct{}{}
		}
	}

	header := make([]string, 0, len(columns))
	for col := range columns {
		header = append(header, col)
	}
	sort.Strings(header)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func sampleFields(s Sample) map[string]string {
	row := map[string]string{
		"timestamp":   s.Timestamp.UTC().Format(time.RFC3339),
		"battery_pct": formatFloat(s.BatteryPct),
	}
	if s.Temperature != nil {
		row["temperature"] = formatFloat(*s.Temperature)
	}
	if s.Humidity != nil {
		row["humidity"] = formatFloat(*s.Humidity)
	}
	if s.RatePctPerMin != nil {
		row["rate_pct_per_min"] = formatFloat(*s.RatePctPerMin)
	}
	if s.ChargerPowerW != nil {
		row["charger_power_w"] = formatFloat(*s.ChargerPowerW)
	}
	if s.OptimizedCharging != nil {
		row["optimized_charging"] = strconv.FormatBool(*s.OptimizedCharging)
	}
	if s.BatteryHealth != nil {
		row["battery_health"] = formatFloat(*s.BatteryHealth)
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
