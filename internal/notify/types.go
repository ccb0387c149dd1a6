package notify

import (
	"time"

	"github.com/geckom/smartcharge-predictor/internal/events"
)

// Endpoint is a configured Shoutrrr destination.
type Endpoint struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"-"` // shoutrrr URL, may embed credentials
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// notifiable lists the event types worth pushing to a phone. Forecast
// updates fire on every sample and would be pure noise.
var notifiable = map[events.EventType]struct{}{
	events.ChargeComplete:   {},
	events.TrainingComplete: {},
	events.TrainingFailed:   {},
	events.DeviceOrphaned:   {},
}
