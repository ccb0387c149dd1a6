package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/geckom/smartcharge-predictor/internal/notify"
)

type endpointRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled"`
}

// ListNotificationEndpoints returns all configured destinations
func ListNotificationEndpoints(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoints, err := notify.ListEndpoints(db)
		if err != nil {
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		if endpoints == nil {
			endpoints = []notify.Endpoint{}
		}
		JSONResponse(w, endpoints)
	}
}

// CreateNotificationEndpoint adds a Shoutrrr destination
func CreateNotificationEndpoint(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		req.URL = strings.TrimSpace(req.URL)
		if req.Name == "" || req.URL == "" {
			JSONError(w, "Missing name or url", http.StatusBadRequest)
			return
		}

		ep := notify.Endpoint{Name: req.Name, URL: req.URL, Enabled: true}
		if req.Enabled != nil {
			ep.Enabled = *req.Enabled
		}

		id, err := notify.CreateEndpoint(db, &ep)
		if err != nil {
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		ep.ID = id

		log.Printf("🔔 Added notification endpoint: %s", ep.Name)
		w.WriteHeader(http.StatusCreated)
		JSONResponse(w, ep)
	}
}

// UpdateNotificationEndpoint updates a destination's name, url or enabled flag
func UpdateNotificationEndpoint(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			JSONError(w, "Invalid id", http.StatusBadRequest)
			return
		}

		existing, err := notify.GetEndpoint(db, id)
		if err != nil {
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		if existing == nil {
			JSONError(w, "Endpoint not found", http.StatusNotFound)
			return
		}

		var req endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		if name := strings.TrimSpace(req.Name); name != "" {
			existing.Name = name
		}
		if url := strings.TrimSpace(req.URL); url != "" {
			existing.URL = url
		}
		if req.Enabled != nil {
			existing.Enabled = *req.Enabled
		}

		if err := notify.UpdateEndpoint(db, existing); err != nil {
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		JSONResponse(w, existing)
	}
}

// DeleteNotificationEndpoint removes a destination
func DeleteNotificationEndpoint(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			JSONError(w, "Invalid id", http.StatusBadRequest)
			return
		}

		if err := notify.DeleteEndpoint(db, id); err != nil {
			JSONError(w, "Endpoint not found", http.StatusNotFound)
			return
		}
		JSONResponse(w, map[string]string{"status": "deleted"})
	}
}

// TestNotificationEndpoint sends a test message to a destination
func TestNotificationEndpoint(db *sql.DB, sender notify.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			JSONError(w, "Invalid id", http.StatusBadRequest)
			return
		}

		ep, err := notify.GetEndpoint(db, id)
		if err != nil {
			JSONError(w, "Database error", http.StatusInternalServerError)
			return
		}
		if ep == nil {
			JSONError(w, "Endpoint not found", http.StatusNotFound)
			return
		}

		if err := sender.Send(ep.URL, "Test notification from SmartCharge Predictor"); err != nil {
			JSONError(w, "Send failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		JSONResponse(w, map[string]string{"status": "sent"})
	}
}
