package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/geckom/smartcharge-predictor/internal/engine"
)

// deviceView is the JSON shape returned for a registered device.
type deviceView struct {
	ID           string              `json:"id"`
	Config       engine.DeviceConfig `json:"config"`
	SampleCount  int                 `json:"sample_count"`
	LastForecast *engine.Forecast    `json:"last_forecast,omitempty"`
}

func viewOf(m *engine.Manager, eng *engine.Engine) deviceView {
	return deviceView{
		ID:           eng.DeviceID(),
		Config:       eng.Config(),
		SampleCount:  m.Store().Count(eng.DeviceID()),
		LastForecast: eng.Forecast(),
	}
}

// ListDevices returns all registered devices
func ListDevices(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devices := make([]deviceView, 0)
		for _, eng := range m.List() {
			devices = append(devices, viewOf(m, eng))
		}
		JSONResponse(w, devices)
	}
}

// RegisterDevice registers a new device and returns its assigned id
func RegisterDevice(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := engine.DefaultDeviceConfig()
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			JSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		cfg.Name = strings.TrimSpace(cfg.Name)
		if cfg.Name == "" {
			JSONError(w, "Missing device name", http.StatusBadRequest)
			return
		}
		if cfg.ScanInterval < 30*time.Second {
			cfg.ScanInterval = 30 * time.Second
		}
		if cfg.ScanInterval > 5*time.Minute {
			cfg.ScanInterval = 5 * time.Minute
		}

		eng, err := m.Register(cfg)
		if err != nil {
			log.Printf("❌ Device registration failed: %v", err)
			JSONError(w, "Failed to register device", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
		JSONResponse(w, viewOf(m, eng))
	}
}

// GetDevice returns a single device
func GetDevice(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng, ok := m.Get(r.PathValue("id"))
		if !ok {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}
		JSONResponse(w, viewOf(m, eng))
	}
}

// DeleteDevice deregisters a device and removes its history
func DeleteDevice(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := m.Deregister(id); err != nil {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}
		log.Printf("🗑️  Deleted device: %s", id)
		JSONResponse(w, map[string]string{"status": "deleted"})
	}
}

// SetLearning toggles learn-from-history for a device
func SetLearning(m *engine.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		id := r.PathValue("id")
		if err := m.SetLearning(id, req.Enabled); err != nil {
			JSONError(w, "Device not found", http.StatusNotFound)
			return
		}
		JSONResponse(w, map[string]interface{}{
			"status":  "updated",
			"enabled": req.Enabled,
		})
	}
}
