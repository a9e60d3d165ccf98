// Package hlscache implements the bounded, single-flight PreparedMedia
// cache (spec.md §4.J): get_or_populate(id) coalesces concurrent misses into
// one populate call, evicts least-recently-used entries once over capacity,
// and gives up after a configurable number of populate retries. Grounded on
// the teacher's sync.Map + singleflight-style coalescing used for shared
// transcode session lookups.
package hlscache

import (
	"sync"
	"time"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/hls"
	"github.com/tidecast/mediapipe/internal/logger"
)

// Populator produces the PreparedMedia for a media file id on a cache miss.
// Implementations do the actual file I/O + CPU work (internal/hls.Precompute)
// and are expected to run on a blocking-safe goroutine (spec.md §4.J
// "populate runs on a blocking worker").
type Populator func(id string) (*hls.PreparedMedia, error)

// entry is one cached PreparedMedia plus its LRU bookkeeping.
type entry struct {
	media      *hls.PreparedMedia
	lastAccess time.Time
}

// loadingCall is the in-flight populate state for one id: the first
// requester owns it and closes done when finished; subsequent requesters
// for the same id wait on done then re-check the cache (spec.md §4.J
// "single-flight").
type loadingCall struct {
	done chan struct{}
	err  error
}

// Cache is the bounded, single-flight PreparedMedia cache.
type Cache struct {
	Populate    Populator
	Capacity    int
	MaxRetries  int

	mu      sync.Mutex
	entries map[string]*entry
	loading map[string]*loadingCall
}

func New(capacity, maxRetries int, populate Populator) *Cache {
	if capacity <= 0 {
		capacity = 200
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Cache{
		Populate:   populate,
		Capacity:   capacity,
		MaxRetries: maxRetries,
		entries:    make(map[string]*entry),
		loading:    make(map[string]*loadingCall),
	}
}

// GetOrPopulate returns the cached PreparedMedia for id, populating it on a
// miss. Concurrent callers for the same missing id block on one shared
// populate call instead of each invoking Populate (spec.md §4.J).
func (c *Cache) GetOrPopulate(id string) (*hls.PreparedMedia, error) {
	for {
		c.mu.Lock()
		if e, ok := c.entries[id]; ok {
			e.lastAccess = time.Now()
			media := e.media
			c.mu.Unlock()
			return media, nil
		}

		if call, ok := c.loading[id]; ok {
			c.mu.Unlock()
			<-call.done
			if call.err != nil {
				return nil, call.err
			}
			continue // re-check the cache now that the owner populated it
		}

		call := &loadingCall{done: make(chan struct{})}
		c.loading[id] = call
		c.mu.Unlock()

		media, err := c.populateWithRetries(id)

		c.mu.Lock()
		delete(c.loading, id)
		if err == nil {
			c.entries[id] = &entry{media: media, lastAccess: time.Now()}
			c.evictLocked()
		}
		c.mu.Unlock()

		call.err = err
		close(call.done)

		if err != nil {
			return nil, err
		}
		return media, nil
	}
}

// populateWithRetries calls c.Populate up to MaxRetries+1 times, surfacing
// the last error to all waiters if every attempt fails (spec.md §4.J
// "maximum retries on populate failure: 2").
func (c *Cache) populateWithRetries(id string) (*hls.PreparedMedia, error) {
	log := logger.Named("hlscache")
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		media, err := c.Populate(id)
		if err == nil {
			return media, nil
		}
		lastErr = err
		log.Warn("populate failed", "id", id, "attempt", attempt, "error", err)
	}
	return nil, apperrors.Internal("populate media "+id, lastErr)
}

// idAge pairs an entry's id with its last-access time for eviction sorting.
type idAge struct {
	id   string
	last time.Time
}

// evictLocked drops the oldest-accessed entries until the cache is back at
// or under capacity. Caller must hold c.mu.
func (c *Cache) evictLocked() {
	over := len(c.entries) - c.Capacity
	if over <= 0 {
		return
	}
	ages := make([]idAge, 0, len(c.entries))
	for id, e := range c.entries {
		ages = append(ages, idAge{id: id, last: e.lastAccess})
	}
	// Insertion sort by ascending last-access; cache sizes are small
	// (default capacity 200), so this stays cheap.
	for i := 1; i < len(ages); i++ {
		for j := i; j > 0 && ages[j].last.Before(ages[j-1].last); j-- {
			ages[j], ages[j-1] = ages[j-1], ages[j]
		}
	}
	for i := 0; i < over; i++ {
		delete(c.entries, ages[i].id)
	}
}

// Len reports the current number of cached entries (test/metrics helper).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Evict removes id from the cache unconditionally, if present.
func (c *Cache) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}
