package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/geckom/smartcharge-predictor/internal/engine"
	"github.com/geckom/smartcharge-predictor/internal/models"
)

// RecordSample ingests a sensor reading for a device and returns the
// resulting forecast
func RecordSample(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := m.Get(id); !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}

		var report models.SampleReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			JSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if report.BatteryPct < 0 {
			JSONError(w, "battery_pct must be non-negative", http.StatusBadRequest)
			return
		}

		forecast, err := m.Ingest(id, engine.Reading{
			BatteryPct:        report.BatteryPct,
			Temperature:       report.Temperature,
			Humidity:          report.Humidity,
			ChargerPowerW:     report.ChargerPowerW,
			OptimizedCharging: report.OptimizedCharging,
		})
		if err != nil {
			JSONError(w, "Failed to ingest sample", http.StatusInternalServerError)
			return
		}

		log.Printf("🔋 Sample: %s at %.1f%%", id, report.BatteryPct)
		JSONResponse(w, forecast)
	}
}

// GetHistory returns a device's recorded samples, newest last. An optional
// ?limit= caps the result to the most recent N samples.
func GetHistory(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := m.Get(id); !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}

		samples := m.Store().History(id)
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			limit, err := strconv.Atoi(limitStr)
			if err != nil || limit < 1 {
				JSONError(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			if limit < len(samples) {
				samples = samples[len(samples)-limit:]
			}
		}

		JSONResponse(w, map[string]interface{}{
			"device_id": id,
			"count":     len(samples),
			"samples":   samples,
		})
	}
}

// GetStatistics returns summary statistics over a device's history
func GetStatistics(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := m.Get(id); !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}

		stats, ok := m.Store().Statistics(id)
		if !ok {
			JSONError(w, "No samples recorded", http.StatusNotFound)
			return
		}
		JSONResponse(w, stats)
	}
}

// ClearHistory removes a device's samples. With ?start= and ?end= (RFC3339)
// only the samples inside the inclusive range are removed.
func ClearHistory(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := m.Get(id); !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}

		startStr := r.URL.Query().Get("start")
		endStr := r.URL.Query().Get("end")

		if startStr == "" && endStr == "" {
			m.Store().Clear(id)
			log.Printf("🗑️  Cleared history: %s", id)
			JSONResponse(w, map[string]string{"status": "cleared"})
			return
		}

		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			JSONError(w, "Invalid start time", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			JSONError(w, "Invalid end time", http.StatusBadRequest)
			return
		}

		m.Store().ClearRange(id, start, end)
		log.Printf("🗑️  Cleared history range: %s [%s .. %s]", id, startStr, endStr)
		JSONResponse(w, map[string]string{"status": "cleared"})
	}
}

// ExportHistory streams a device's samples as CSV
func ExportHistory(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := m.Get(id); !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", id+"-history.csv"))
		if err := m.Store().ExportCSV(id, w); err != nil {
			log.Printf("⚠️  CSV export failed for %s: %v", id, err)
		}
	}
}
