package notify

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/geckom/smartcharge-predictor/internal/events"
)

// DefaultCooldown is the minimum gap between repeated notifications of
// the same event type for the same device and endpoint.
const DefaultCooldown = 10 * time.Minute

// Sender abstracts message dispatch so the dispatcher can be tested
// without hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// Dispatcher subscribes to the event bus, filters to notifiable event
// types, enforces cooldowns and dispatches via Shoutrrr.
type Dispatcher struct {
	db       *sql.DB
	bus      *events.Bus
	sender   Sender
	cooldown time.Duration

	// cooldowns tracks the last dispatch time per (endpoint, device, event_type).
	mu        sync.Mutex
	cooldowns map[string]time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher wired to the given bus and database.
func NewDispatcher(db *sql.DB, bus *events.Bus, sender Sender) *Dispatcher {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	return &Dispatcher{
		db:        db,
		bus:       bus,
		sender:    sender,
		cooldown:  DefaultCooldown,
		cooldowns: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// SetCooldown overrides the dispatch cooldown. Used by tests.
func (d *Dispatcher) SetCooldown(cd time.Duration) {
	d.cooldown = cd
}

// Start subscribes to all events and begins dispatching.
func (d *Dispatcher) Start() {
	ch := make(chan events.Event, 256)

	d.bus.Subscribe(func(e events.Event) {
		select {
		case ch <- e:
		default:
			log.Printf("notify: event queue full, dropping %s event", e.Type)
		}
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-ch:
				d.handle(e)
			case <-d.stopCh:
				// Drain remaining events
				for {
					select {
					case e := <-ch:
						d.handle(e)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop signals the dispatcher goroutine to finish and waits for it.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// handle processes a single event against all enabled endpoints.
func (d *Dispatcher) handle(e events.Event) {
	if _, ok := notifiable[e.Type]; !ok {
		return
	}

	endpoints, err := ListEnabledEndpoints(d.db)
	if err != nil {
		log.Printf("notify: list endpoints: %v", err)
		return
	}

	for _, ep := range endpoints {
		if !d.cooldownElapsed(ep.ID, e) {
			continue
		}
		d.dispatch(ep, e)
	}
}

// cooldownElapsed records and enforces the per-endpoint cooldown. Warnings
// bypass cooldowns so a training failure is never silently swallowed.
func (d *Dispatcher) cooldownElapsed(endpointID int64, e events.Event) bool {
	if e.Severity == events.SeverityWarning {
		return true
	}

	key := fmt.Sprintf("%d:%s:%s", endpointID, e.DeviceID, e.Type)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.cooldowns[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.cooldowns[key] = now
	return true
}

// dispatch sends the notification to a single endpoint.
func (d *Dispatcher) dispatch(ep Endpoint, e events.Event) {
	if ep.URL == "" {
		log.Printf("notify: endpoint %d (%s) has no url", ep.ID, ep.Name)
		return
	}

	msg := formatMessage(e)
	if err := d.sender.Send(ep.URL, msg); err != nil {
		log.Printf("notify: send to %s failed: %v", ep.Name, err)
		return
	}
	log.Printf("notify: sent %s to %s", e.Type, ep.Name)
}

// formatMessage builds a human-readable notification string.
func formatMessage(e events.Event) string {
	severity := e.Severity.String()
	if e.DeviceID != "" {
		return fmt.Sprintf("[%s] [%s] %s", severity, e.DeviceID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", severity, e.Message)
}
