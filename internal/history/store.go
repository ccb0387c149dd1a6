package history

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxSamples is roughly 30 days of change-triggered samples at the
	// slowest scan interval, rounded up.
	DefaultMaxSamples = 10000
	MinMaxSamples     = 100
	MaxMaxSamples     = 100000

	// DefaultFlushIdle is how long the store waits after the last mutation
	// before a debounced flush becomes due.
	DefaultFlushIdle = 5 * time.Minute
)

// Persistence stores per-device history blobs. The store marshals samples
// itself; implementations treat blobs as opaque.
type Persistence interface {
	Load(deviceID string) ([]byte, error) // (nil, nil) when no blob exists
	Save(deviceID string, blob []byte) error
	Delete(deviceID string) error
	List() ([]string, error)
}

// Store is a per-device bounded ordered log of charging samples. All writers
// append at "now", so insertion order is chronological. Mutations are atomic
// with respect to reads, and every mutation marks the store dirty for a
// debounced persistence flush.
type Store struct {
	mu        sync.RWMutex
	histories map[string][]Sample
	limits    map[string]int

	persist   Persistence
	flushIdle time.Duration
	dirty     bool
	dirtyAt   time.Time

	nowFunc func() time.Time
}

// NewStore creates a store backed by the given persistence layer. persist may
// be nil for a purely in-memory store. A flushIdle of 0 uses DefaultFlushIdle.
func NewStore(persist Persistence, flushIdle time.Duration) *Store {
	if flushIdle <= 0 {
		flushIdle = DefaultFlushIdle
	}
	return &Store{
		histories: make(map[string][]Sample),
		limits:    make(map[string]int),
		persist:   persist,
		flushIdle: flushIdle,
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the store's clock. Used by tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	s.nowFunc = now
	s.mu.Unlock()
}

// SetMaxSamples sets the retention limit for a device, clamped to
// [MinMaxSamples, MaxMaxSamples]. An over-limit history is trimmed immediately.
func (s *Store) SetMaxSamples(deviceID string, max int) {
	if max < MinMaxSamples {
		max = MinMaxSamples
	}
	if max > MaxMaxSamples {
		max = MaxMaxSamples
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[deviceID] = max
	if h := s.histories[deviceID]; len(h) > max {
		s.histories[deviceID] = append([]Sample(nil), h[len(h)-max:]...)
		s.markDirtyLocked()
	}
}

func (s *Store) maxSamplesLocked(deviceID string) int {
	if max, ok := s.limits[deviceID]; ok {
		return max
	}
	return DefaultMaxSamples
}

// Record appends a new sample for a device with a server-assigned timestamp,
// trimming the oldest samples if the history exceeds the device's limit.
// It always succeeds and returns the stored sample.
func (s *Store) Record(deviceID string, sample Sample) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample.Timestamp = s.nowFunc().UTC()
	h := append(s.histories[deviceID], sample)

	if max := s.maxSamplesLocked(deviceID); len(h) > max {
		h = append([]Sample(nil), h[len(h)-max:]...)
	}
	s.histories[deviceID] = h
	s.markDirtyLocked()

	rate := "none"
	if sample.RatePctPerMin != nil {
		rate = fmt.Sprintf("%.3f", *sample.RatePctPerMin)
	}
	log.Printf("[History] %s: recorded sample battery=%.1f%% rate=%s%%/min (%d stored)",
		deviceID, sample.BatteryPct, rate, len(h))
	return sample
}

// Latest returns the most recent sample for a device.
func (s *Store) Latest(deviceID string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[deviceID]
	if len(h) == 0 {
		return Sample{}, false
	}
	return h[len(h)-1], true
}

// History returns a copy of the full ordered sample sequence for a device.
func (s *Store) History(deviceID string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Sample(nil), s.histories[deviceID]...)
}

// Count returns the number of stored samples for a device.
func (s *Store) Count(deviceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories[deviceID])
}

// Devices returns the ids of all devices with history, sorted.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear removes all samples for a device.
func (s *Store) Clear(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.histories[deviceID]; !ok {
		return
	}
	delete(s.histories, deviceID)
	s.markDirtyLocked()
	log.Printf("[History] %s: cleared history", deviceID)
}

// ClearRange removes samples whose timestamp falls within [start, end]
// inclusive, preserving the order of the remainder. Calling it twice with the
// same range is a no-op the second time.
func (s *Store) ClearRange(deviceID string, start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histories[deviceID]
	if !ok {
		return
	}

	kept := h[:0:0]
	for _, sample := range h {
		if sample.Timestamp.Before(start) || sample.Timestamp.After(end) {
			kept = append(kept, sample)
		}
	}
	if len(kept) == len(h) {
		return
	}
	s.histories[deviceID] = kept
	s.markDirtyLocked()
	log.Printf("[History] %s: cleared %d samples in [%s, %s]",
		deviceID, len(h)-len(kept), start.Format(time.RFC3339), end.Format(time.RFC3339))
}

// CleanupOrphans removes every device's history whose id is not in the active
// set and returns the removed ids. Idempotent: a second invocation with the
// same set removes nothing.
func (s *Store) CleanupOrphans(activeDeviceIDs map[string]struct{}) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orphaned []string
	for id := range s.histories {
		if _, ok := activeDeviceIDs[id]; ok {
			continue
		}
		orphaned = append(orphaned, id)
		count := len(s.histories[id])
		delete(s.histories, id)
		delete(s.limits, id)
		log.Printf("[History] removed orphaned history for %s (%d samples)", id, count)
	}
	if len(orphaned) > 0 {
		sort.Strings(orphaned)
		s.markDirtyLocked()
	}
	return orphaned
}

// ── Persistence ─────────────────────────────────────────────────────────────

func (s *Store) markDirtyLocked() {
	s.dirty = true
	s.dirtyAt = s.nowFunc()
}

// Load restores all persisted device histories. Corrupt blobs are skipped
// with a warning; a missing persistence layer is a no-op.
func (s *Store) Load() error {
	if s.persist == nil {
		return nil
	}

	ids, err := s.persist.List()
	if err != nil {
		return fmt.Errorf("list persisted histories: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, id := range ids {
		blob, err := s.persist.Load(id)
		if err != nil || blob == nil {
			log.Printf("Warning: failed to load history for %s: %v", id, err)
			continue
		}
		var samples []Sample
		if err := json.Unmarshal(blob, &samples); err != nil {
			log.Printf("Warning: corrupt history blob for %s: %v", id, err)
			continue
		}
		s.histories[id] = samples
		total += len(samples)
	}
	if len(s.histories) > 0 {
		log.Printf("[History] loaded %d device(s), %d samples", len(s.histories), total)
	}
	return nil
}

// FlushIfDue persists the store if it is dirty and the idle window has
// elapsed since the last mutation.
func (s *Store) FlushIfDue(now time.Time) error {
	s.mu.RLock()
	due := s.dirty && now.Sub(s.dirtyAt) >= s.flushIdle
	s.mu.RUnlock()

	if !due {
		return nil
	}
	return s.FlushNow()
}

// FlushNow persists every device's history immediately, regardless of the
// debounce window. Used on shutdown and after explicit user actions.
func (s *Store) FlushNow() error {
	if s.persist == nil {
		return nil
	}

	s.mu.Lock()
	snapshot := make(map[string][]Sample, len(s.histories))
	for id, h := range s.histories {
		snapshot[id] = append([]Sample(nil), h...)
	}
	s.dirty = false
	s.mu.Unlock()

	persisted, err := s.persist.List()
	if err == nil {
		// Drop blobs for devices no longer in memory (cleared or orphaned).
		for _, id := range persisted {
			if _, live := snapshot[id]; !live {
				if err := s.persist.Delete(id); err != nil {
					log.Printf("Warning: failed to delete stale history blob for %s: %v", id, err)
				}
			}
		}
	}

	for id, samples := range snapshot {
		blob, err := json.Marshal(samples)
		if err != nil {
			return fmt.Errorf("marshal history for %s: %w", id, err)
		}
		if err := s.persist.Save(id, blob); err != nil {
			return fmt.Errorf("save history for %s: %w", id, err)
		}
	}
	return nil
}
