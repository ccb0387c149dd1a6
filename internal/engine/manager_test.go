package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/geckom/smartcharge-predictor/internal/events"
	"github.com/geckom/smartcharge-predictor/internal/history"
	"github.com/geckom/smartcharge-predictor/internal/model"
)

// memRegistry is an in-memory DeviceRegistry.
type memRegistry struct {
	records map[string]DeviceRecord
}

func newMemRegistry() *memRegistry {
	return &memRegistry{records: make(map[string]DeviceRecord)}
}

func (r *memRegistry) CreateDevice(rec DeviceRecord) error {
	r.records[rec.ID] = rec
	return nil
}

func (r *memRegistry) UpdateDevice(rec DeviceRecord) error {
	r.records[rec.ID] = rec
	return nil
}

func (r *memRegistry) DeleteDevice(id string) error {
	delete(r.records, id)
	return nil
}

func (r *memRegistry) ListDevices() ([]DeviceRecord, error) {
	out := make([]DeviceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func testManager(registry DeviceRegistry, bus *events.Bus) *Manager {
	store := history.NewStore(nil, time.Hour)
	return NewManager(store, nil, registry, model.NewBuiltinBackend(42), model.DefaultConfig(), bus)
}

// ── Registration ────────────────────────────────────────────────────────

func TestRegisterAssignsID(t *testing.T) {
	registry := newMemRegistry()
	m := testManager(registry, nil)

	cfg := DefaultDeviceConfig()
	cfg.Name = "Laptop"
	eng, err := m.Register(cfg)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if eng.DeviceID() == "" {
		t.Fatal("Expected a server-assigned device id")
	}

	if got, ok := m.Get(eng.DeviceID()); !ok || got != eng {
		t.Error("Expected the engine to be retrievable by id")
	}

	rec, ok := registry.records[eng.DeviceID()]
	if !ok {
		t.Fatal("Expected the registration to be persisted")
	}
	if rec.Name != "Laptop" {
		t.Errorf("Expected persisted name Laptop, got %q", rec.Name)
	}
	var persisted DeviceConfig
	if err := json.Unmarshal(rec.Config, &persisted); err != nil {
		t.Fatalf("Persisted config is not valid JSON: %v", err)
	}
	if persisted.ChargerPowerW != cfg.ChargerPowerW {
		t.Errorf("Expected the full config persisted, got %+v", persisted)
	}
}

func TestRegisterDistinctIDs(t *testing.T) {
	m := testManager(newMemRegistry(), nil)

	a, _ := m.Register(DeviceConfig{Name: "a"})
	b, _ := m.Register(DeviceConfig{Name: "b"})
	if a.DeviceID() == b.DeviceID() {
		t.Error("Expected distinct ids per registration")
	}
	if got := len(m.List()); got != 2 {
		t.Errorf("Expected 2 engines, got %d", got)
	}
}

func TestRegisterPublishesEvent(t *testing.T) {
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(func(e events.Event) { got = append(got, e) }, events.DeviceRegistered)

	m := testManager(newMemRegistry(), bus)
	eng, _ := m.Register(DeviceConfig{Name: "phone"})

	if len(got) != 1 || got[0].DeviceID != eng.DeviceID() {
		t.Errorf("Expected one registration event for the device, got %+v", got)
	}
}

// ── Deregistration ──────────────────────────────────────────────────────

func TestDeregisterRemovesEverything(t *testing.T) {
	registry := newMemRegistry()
	m := testManager(registry, nil)

	eng, _ := m.Register(DeviceConfig{Name: "laptop"})
	id := eng.DeviceID()
	m.Store().Record(id, history.Sample{BatteryPct: 50})

	if err := m.Deregister(id); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}

	if _, ok := m.Get(id); ok {
		t.Error("Expected the engine to be removed")
	}
	if _, ok := registry.records[id]; ok {
		t.Error("Expected the registration to be removed")
	}
	if got := m.Store().Count(id); got != 0 {
		t.Errorf("Expected the device history to be cleaned up, got %d samples", got)
	}
}

func TestDeregisterUnknownDevice(t *testing.T) {
	m := testManager(newMemRegistry(), nil)
	if err := m.Deregister("nope"); err == nil {
		t.Error("Expected an error for an unknown device")
	}
}

// ── Startup load ────────────────────────────────────────────────────────

func TestLoadDevicesRestoresConfig(t *testing.T) {
	registry := newMemRegistry()

	cfg := DefaultDeviceConfig()
	cfg.Name = "Laptop"
	cfg.ChargerPowerW = 65
	cfg.LearnFromHistory = false
	blob, _ := json.Marshal(cfg)
	registry.records["dev-1"] = DeviceRecord{ID: "dev-1", Name: "Laptop", Config: blob}

	m := testManager(registry, nil)
	if err := m.LoadDevices(); err != nil {
		t.Fatalf("LoadDevices failed: %v", err)
	}

	eng, ok := m.Get("dev-1")
	if !ok {
		t.Fatal("Expected an engine for the persisted device")
	}
	got := eng.Config()
	if got.Name != "Laptop" || got.ChargerPowerW != 65 || got.LearnFromHistory {
		t.Errorf("Expected the persisted config restored, got %+v", got)
	}
}

func TestLoadDevicesBadConfigFallsBack(t *testing.T) {
	registry := newMemRegistry()
	registry.records["dev-1"] = DeviceRecord{ID: "dev-1", Name: "Laptop", Config: []byte("garbage{")}

	m := testManager(registry, nil)
	if err := m.LoadDevices(); err != nil {
		t.Fatalf("LoadDevices failed: %v", err)
	}

	eng, ok := m.Get("dev-1")
	if !ok {
		t.Fatal("Expected an engine despite the bad config")
	}
	got := eng.Config()
	if got.Name != "Laptop" || got.ChargerPowerW != DefaultDeviceConfig().ChargerPowerW {
		t.Errorf("Expected defaults with the registry name, got %+v", got)
	}
}

func TestLoadDevicesCleansOrphans(t *testing.T) {
	registry := newMemRegistry()
	registry.records["dev-1"] = DeviceRecord{ID: "dev-1", Name: "a"}

	m := testManager(registry, nil)
	m.Store().Record("ghost", history.Sample{BatteryPct: 10})

	if err := m.LoadDevices(); err != nil {
		t.Fatalf("LoadDevices failed: %v", err)
	}
	if got := m.Store().Count("ghost"); got != 0 {
		t.Errorf("Expected orphaned history removed, got %d samples", got)
	}
}

// ── Operations ──────────────────────────────────────────────────────────

func TestSetLearningPersists(t *testing.T) {
	registry := newMemRegistry()
	m := testManager(registry, nil)

	eng, _ := m.Register(DefaultDeviceConfig())
	id := eng.DeviceID()

	if err := m.SetLearning(id, false); err != nil {
		t.Fatalf("SetLearning failed: %v", err)
	}
	if eng.Config().LearnFromHistory {
		t.Error("Expected learning disabled on the engine")
	}

	var persisted DeviceConfig
	if err := json.Unmarshal(registry.records[id].Config, &persisted); err != nil {
		t.Fatalf("Persisted config is not valid JSON: %v", err)
	}
	if persisted.LearnFromHistory {
		t.Error("Expected the change persisted to the registry")
	}

	if err := m.SetLearning("nope", true); err == nil {
		t.Error("Expected an error for an unknown device")
	}
}

func TestIngest(t *testing.T) {
	m := testManager(newMemRegistry(), nil)
	eng, _ := m.Register(DefaultDeviceConfig())

	f, err := m.Ingest(eng.DeviceID(), Reading{BatteryPct: 40})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if f == nil || f.BatteryPct != 40 {
		t.Fatalf("Expected a forecast at 40%%, got %+v", f)
	}

	if _, err := m.Ingest("nope", Reading{BatteryPct: 40}); err == nil {
		t.Error("Expected an error for an unknown device")
	}
}

func TestListSorted(t *testing.T) {
	m := testManager(nil, nil)
	m.mu.Lock()
	m.engines["charlie"] = m.buildEngine("charlie", DefaultDeviceConfig())
	m.engines["alpha"] = m.buildEngine("alpha", DefaultDeviceConfig())
	m.engines["bravo"] = m.buildEngine("bravo", DefaultDeviceConfig())
	m.mu.Unlock()

	var ids []string
	for _, eng := range m.List() {
		ids = append(ids, eng.DeviceID())
	}
	want := []string{"alpha", "bravo", "charlie"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Expected sorted ids %v, got %v", want, ids)
		}
	}
}
