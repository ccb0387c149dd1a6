package handlers

import (
	"database/sql"
	"net/http"

	"github.com/geckom/smartcharge-predictor/internal/engine"
	"github.com/geckom/smartcharge-predictor/internal/notify"
)

// RegisterDeviceRoutes registers all device, sample and forecast endpoints.
func RegisterDeviceRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc, m *engine.Manager) {
	mux.HandleFunc("GET /api/devices", protect(ListDevices(m)))
	mux.HandleFunc("POST /api/devices", protect(RegisterDevice(m)))
	mux.HandleFunc("GET /api/devices/{id}", protect(GetDevice(m)))
	mux.HandleFunc("DELETE /api/devices/{id}", protect(DeleteDevice(m)))
	mux.HandleFunc("PUT /api/devices/{id}/learning", protect(SetLearning(m)))

	mux.HandleFunc("POST /api/devices/{id}/samples", protect(RecordSample(m)))
	mux.HandleFunc("GET /api/devices/{id}/history", protect(GetHistory(m)))
	mux.HandleFunc("GET /api/devices/{id}/history/stats", protect(GetStatistics(m)))
	mux.HandleFunc("GET /api/devices/{id}/history/export", protect(ExportHistory(m)))
	mux.HandleFunc("DELETE /api/devices/{id}/history", protect(ClearHistory(m)))

	mux.HandleFunc("GET /api/devices/{id}/forecast", protect(GetForecast(m)))
	mux.HandleFunc("GET /api/devices/{id}/model", protect(GetModelInfo(m)))
	mux.HandleFunc("POST /api/devices/{id}/retrain", protect(Retrain(m)))
}

// RegisterNotificationRoutes registers notification endpoint management.
func RegisterNotificationRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc, db *sql.DB, sender notify.Sender) {
	mux.HandleFunc("GET /api/notifications", protect(ListNotificationEndpoints(db)))
	mux.HandleFunc("POST /api/notifications", protect(CreateNotificationEndpoint(db)))
	mux.HandleFunc("PUT /api/notifications/{id}", protect(UpdateNotificationEndpoint(db)))
	mux.HandleFunc("DELETE /api/notifications/{id}", protect(DeleteNotificationEndpoint(db)))
	mux.HandleFunc("POST /api/notifications/{id}/test", protect(TestNotificationEndpoint(db, sender)))
}
