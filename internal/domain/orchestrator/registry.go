package orchestrator

import (
	"sync"
	"time"

	"github.com/brandcraft/server/internal/model"
)

type registryEntry struct {
	result   *model.DispatchResult
	storedAt time.Time
}

// resultRegistry keeps recent dispatch results so queued dispatches can be polled.
type resultRegistry struct {
	mu         sync.RWMutex
	entries    map[string]registryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newResultRegistry(ttl time.Duration, maxEntries int, now func() time.Time) *resultRegistry {
	return &resultRegistry{
		entries:    make(map[string]registryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

func (r *resultRegistry) put(result *model.DispatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.entries[result.DispatchID] = registryEntry{result: result, storedAt: now}

	if r.maxEntries > 0 && len(r.entries) > r.maxEntries {
		r.pruneLocked(now)
	}
}

func (r *resultRegistry) get(dispatchID string) (*model.DispatchResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[dispatchID]
	if !ok {
		return nil, false
	}
	if r.ttl > 0 && r.now().Sub(entry.storedAt) > r.ttl {
		return nil, false
	}
	return entry.result, true
}

// pruneLocked drops expired entries, then the oldest ones until the bound holds.
func (r *resultRegistry) pruneLocked(now time.Time) {
	if r.ttl > 0 {
		for id, entry := range r.entries {
			if now.Sub(entry.storedAt) > r.ttl {
				delete(r.entries, id)
			}
		}
	}

	for len(r.entries) > r.maxEntries {
		var oldestID string
		var oldest time.Time
		for id, entry := range r.entries {
			if oldestID == "" || entry.storedAt.Before(oldest) {
				oldestID, oldest = id, entry.storedAt
			}
		}
		delete(r.entries, oldestID)
	}
}
