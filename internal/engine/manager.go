package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/geckom/smartcharge-predictor/internal/events"
	"github.com/geckom/smartcharge-predictor/internal/history"
	"github.com/geckom/smartcharge-predictor/internal/model"
)

// DeviceRecord is a registered device as persisted by the registry. Config
// is the JSON-encoded DeviceConfig; the registry treats it as opaque.
type DeviceRecord struct {
	ID     string
	Name   string
	Config []byte
}

// DeviceRegistry persists device registrations.
type DeviceRegistry interface {
	CreateDevice(rec DeviceRecord) error
	UpdateDevice(rec DeviceRecord) error
	DeleteDevice(id string) error
	ListDevices() ([]DeviceRecord, error)
}

// Manager owns the DeviceId → (history entry, model state) mapping: one
// engine per registered device, constructed at startup and handed to
// collaborators by reference. No cross-device locking — devices are fully
// independent.
type Manager struct {
	store    *history.Store
	states   model.StateStore
	registry DeviceRegistry
	backend  model.Backend
	modelCfg model.Config
	bus      *events.Bus

	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewManager wires a manager. registry and states may be nil for in-memory
// operation (tests).
func NewManager(store *history.Store, states model.StateStore, registry DeviceRegistry, backend model.Backend, modelCfg model.Config, bus *events.Bus) *Manager {
	return &Manager{
		store:    store,
		states:   states,
		registry: registry,
		backend:  backend,
		modelCfg: modelCfg,
		bus:      bus,
		engines:  make(map[string]*Engine),
	}
}

// LoadDevices builds engines for every persisted device registration and
// restores their model state, then removes orphaned history and model blobs
// left behind by deleted registrations.
func (m *Manager) LoadDevices() error {
	if m.registry == nil {
		return nil
	}

	records, err := m.registry.ListDevices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	m.mu.Lock()
	for _, rec := range records {
		cfg := DefaultDeviceConfig()
		if len(rec.Config) > 0 {
			if err := json.Unmarshal(rec.Config, &cfg); err != nil {
				log.Printf("Warning: bad config for device %s, using defaults: %v", rec.ID, err)
				cfg = DefaultDeviceConfig()
			}
		}
		cfg.Name = rec.Name
		eng := m.buildEngine(rec.ID, cfg)
		eng.predictor.LoadState()
		m.engines[rec.ID] = eng
	}
	m.mu.Unlock()

	m.CleanupOrphans()
	log.Printf("[Engine] loaded %d device(s)", len(records))
	return nil
}

func (m *Manager) buildEngine(deviceID string, cfg DeviceConfig) *Engine {
	predictor := model.NewPredictor(deviceID, m.modelCfg, m.backend, m.states)
	return New(deviceID, cfg, m.store, predictor, m.bus)
}

// Register creates a new device with a server-assigned id and returns its
// engine.
func (m *Manager) Register(cfg DeviceConfig) (*Engine, error) {
	id := uuid.NewString()

	if m.registry != nil {
		blob, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal device config: %w", err)
		}
		if err := m.registry.CreateDevice(DeviceRecord{ID: id, Name: cfg.Name, Config: blob}); err != nil {
			return nil, fmt.Errorf("persist device %s: %w", id, err)
		}
	}

	eng := m.buildEngine(id, cfg)
	m.mu.Lock()
	m.engines[id] = eng
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(events.Event{
			Type:     events.DeviceRegistered,
			Severity: events.SeverityInfo,
			DeviceID: id,
			Message:  fmt.Sprintf("Registered device %q (%s)", cfg.Name, id),
		})
	}
	log.Printf("[Engine] registered device %q as %s", cfg.Name, id)
	return eng, nil
}

// Deregister removes a device registration and cleans up its history and
// model state.
func (m *Manager) Deregister(id string) error {
	m.mu.Lock()
	eng, ok := m.engines[id]
	if ok {
		delete(m.engines, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown device %s", id)
	}

	if m.registry != nil {
		if err := m.registry.DeleteDevice(id); err != nil {
			return fmt.Errorf("delete device %s: %w", id, err)
		}
	}

	eng.predictor.DeleteState()
	m.CleanupOrphans()

	if m.bus != nil {
		m.bus.Publish(events.Event{
			Type:     events.DeviceOrphaned,
			Severity: events.SeverityInfo,
			DeviceID: id,
			Message:  fmt.Sprintf("Removed device %s and its history", id),
		})
	}
	return nil
}

// CleanupOrphans removes history for any device id without a live engine.
// Idempotent; safe to call at startup and after deregistrations.
func (m *Manager) CleanupOrphans() []string {
	m.mu.RLock()
	active := make(map[string]struct{}, len(m.engines))
	for id := range m.engines {
		active[id] = struct{}{}
	}
	m.mu.RUnlock()

	orphaned := m.store.CleanupOrphans(active)
	if len(orphaned) > 0 {
		if err := m.store.FlushNow(); err != nil {
			log.Printf("Warning: flush after orphan cleanup failed: %v", err)
		}
	}
	return orphaned
}

// SetLearning toggles learn-from-history for a device and persists the
// change.
func (m *Manager) SetLearning(id string, enabled bool) error {
	eng, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("unknown device %s", id)
	}
	eng.SetLearnFromHistory(enabled)

	if m.registry != nil {
		cfg := eng.Config()
		blob, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal device config: %w", err)
		}
		if err := m.registry.UpdateDevice(DeviceRecord{ID: id, Name: cfg.Name, Config: blob}); err != nil {
			return fmt.Errorf("persist device %s: %w", id, err)
		}
	}
	return nil
}

// Store exposes the shared sample store.
func (m *Manager) Store() *history.Store {
	return m.store
}

// Get returns the engine for a device id.
func (m *Manager) Get(id string) (*Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	eng, ok := m.engines[id]
	return eng, ok
}

// List returns all engines sorted by device id.
func (m *Manager) List() []*Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()

	engines := make([]*Engine, 0, len(m.engines))
	for _, eng := range m.engines {
		engines = append(engines, eng)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i].deviceID < engines[j].deviceID })
	return engines
}

// Ingest feeds a reading for a device through its engine.
func (m *Manager) Ingest(id string, reading Reading) (*Forecast, error) {
	eng, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown device %s", id)
	}
	return eng.Update(reading, true), nil
}
