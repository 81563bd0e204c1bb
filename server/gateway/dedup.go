package gateway

import (
	"sync"
	"time"
)

// The mesh floods every frame, so the same message identifier routinely
// arrives more than once within a few minutes.
const DEFAULT_DEDUP_WINDOW = 5 * time.Minute

// DedupCache remembers recently seen message identifiers for one window.
type DedupCache struct {
	lock   sync.Mutex
	seen   map[string]time.Time
	window time.Duration
}

func NewDedupCache(window time.Duration) *DedupCache {
	if window <= 0 {
		window = DEFAULT_DEDUP_WINDOW
	}
	return &DedupCache{
		seen:   make(map[string]time.Time),
		window: window,
	}
}

// Duplicate records the identifier and reports whether it was already seen
// within the window. Empty identifiers are never deduplicated.
func (d *DedupCache) Duplicate(id string) bool {
	if id == "" {
		return false
	}
	now := time.Now()

	d.lock.Lock()
	defer d.lock.Unlock()
	for old, stamp := range d.seen {
		if now.Sub(stamp) > d.window {
			delete(d.seen, old)
		}
	}
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = now
	return false
}

func (d *DedupCache) Len() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.seen)
}
