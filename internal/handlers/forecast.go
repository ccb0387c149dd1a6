package handlers

import (
	"log"
	"net/http"

	"github.com/geckom/smartcharge-predictor/internal/engine"
)

// GetForecast returns the most recent forecast for a device
func GetForecast(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng, ok := m.Get(r.PathValue("id"))
		if !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}

		forecast := eng.Forecast()
		if forecast == nil {
			JSONError(w, "No forecast yet", http.StatusNotFound)
			return
		}
		JSONResponse(w, forecast)
	}
}

// GetModelInfo returns details about a device's active prediction model
func GetModelInfo(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng, ok := m.Get(r.PathValue("id"))
		if !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}
		JSONResponse(w, eng.Predictor().Info(m.Store().Count(eng.DeviceID())))
	}
}

// Retrain forces a synchronous training pass for a device
func Retrain(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng, ok := m.Get(r.PathValue("id"))
		if !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}

		trained, err := eng.Retrain()
		if err != nil {
			log.Printf("⚠️  Retrain failed for %s: %v", eng.DeviceID(), err)
			JSONError(w, err.Error(), http.StatusConflict)
			return
		}

		JSONResponse(w, map[string]interface{}{
			"trained": trained,
			"model":   eng.Predictor().Info(m.Store().Count(eng.DeviceID())),
		})
	}
}
