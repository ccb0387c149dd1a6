package events

import "time"

// EventType identifies the kind of event being published.
type EventType string

const (
	// Forecast events
	ForecastUpdated EventType = "forecast_updated"
	ChargeStarted   EventType = "charge_started"
	ChargeComplete  EventType = "charge_complete"

	// Model lifecycle events
	TrainingComplete EventType = "training_complete"
	TrainingFailed   EventType = "training_failed"

	// Device lifecycle events
	DeviceRegistered EventType = "device_registered"
	DeviceOrphaned   EventType = "device_orphaned"
)

// Severity indicates the urgency of an event.
type Severity int

const (
	SeverityInfo    Severity = 0
	SeverityWarning Severity = 1
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Event is the payload published through the bus.
type Event struct {
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	DeviceID  string            `json:"device_id,omitempty"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Payload   interface{}       `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
