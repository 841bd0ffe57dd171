package cache

import (
	"log"
	"sync"
	"time"
)

// SessionTracker remembers which sessions have been active recently. It
// has its own capacity and idle timeout, independent of the content
// cache. When a session is forgotten, onEvict is called with its ID so
// the caller can purge the session's private entries.
type SessionTracker struct {
	mu       sync.Mutex
	capacity int
	idleTTL  time.Duration
	lastSeen map[string]time.Time
	onEvict  func(sessionID string)
	now      func() time.Time
}

// NewSessionTracker creates a tracker. A non-positive capacity or idle TTL
// disables that bound.
func NewSessionTracker(capacity int, idleTTL time.Duration, onEvict func(string)) *SessionTracker {
	return &SessionTracker{
		capacity: capacity,
		idleTTL:  idleTTL,
		lastSeen: make(map[string]time.Time),
		onEvict:  onEvict,
		now:      time.Now,
	}
}

// Touch records activity for sessionID. The anonymous owner is shared and
// never tracked.
func (t *SessionTracker) Touch(sessionID string) {
	if Owner(sessionID) == AnonymousSession {
		return
	}

	var evicted []string
	t.mu.Lock()
	if _, known := t.lastSeen[sessionID]; !known && t.capacity > 0 {
		for len(t.lastSeen) >= t.capacity {
			victim := t.leastRecentLocked()
			delete(t.lastSeen, victim)
			evicted = append(evicted, victim)
		}
	}
	t.lastSeen[sessionID] = t.now()
	t.mu.Unlock()

	t.evict(evicted, "capacity")
}

// Active returns how many sessions are tracked.
func (t *SessionTracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}

// Known reports whether sessionID is currently tracked.
func (t *SessionTracker) Known(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.lastSeen[sessionID]
	return ok
}

// Sweep forgets sessions idle for longer than the idle TTL.
func (t *SessionTracker) Sweep() int {
	if t.idleTTL <= 0 {
		return 0
	}
	var evicted []string
	t.mu.Lock()
	cutoff := t.now().Add(-t.idleTTL)
	for id, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			delete(t.lastSeen, id)
			evicted = append(evicted, id)
		}
	}
	t.mu.Unlock()

	t.evict(evicted, "idle")
	return len(evicted)
}

func (t *SessionTracker) leastRecentLocked() string {
	var oldestID string
	var oldest time.Time
	for id, seen := range t.lastSeen {
		if oldestID == "" || seen.Before(oldest) {
			oldestID, oldest = id, seen
		}
	}
	return oldestID
}

func (t *SessionTracker) evict(ids []string, reason string) {
	for _, id := range ids {
		log.Printf("[cache] session %.8s evicted (%s)", id, reason)
		if t.onEvict != nil {
			t.onEvict(id)
		}
	}
}
