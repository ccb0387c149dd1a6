package models

import "time"

// SampleReport is a sensor reading posted by an agent or received over MQTT
type SampleReport struct {
	DeviceID          string   `json:"device_id,omitempty"`
	BatteryPct        float64  `json:"battery_pct"`
	Temperature       *float64 `json:"temperature,omitempty"`
	Humidity          *float64 `json:"humidity,omitempty"`
	ChargerPowerW     *float64 `json:"charger_power_w,omitempty"`
	OptimizedCharging *bool    `json:"optimized_charging,omitempty"`
}

// User represents an authenticated user
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents an active user session
type Session struct {
	Token     string    `json:"token"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config holds server configuration
type Config struct {
	Port          string
	DBPath        string
	AdminUser     string
	AdminPass     string
	AuthEnabled   bool
	FlushInterval time.Duration
	MQTTBroker    string
	MQTTUsername  string
	MQTTPassword  string
	MQTTTopic     string
}
