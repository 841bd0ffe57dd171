package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTracker_CapacityEvictsLeastRecent(t *testing.T) {
	var evicted []string
	tr := NewSessionTracker(2, time.Hour, func(id string) { evicted = append(evicted, id) })
	clock := newClock()
	tr.now = clock.Now

	tr.Touch("a")
	clock.Advance(time.Second)
	tr.Touch("b")
	clock.Advance(time.Second)
	tr.Touch("a")
	clock.Advance(time.Second)
	tr.Touch("c")

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, tr.Active())
	assert.True(t, tr.Known("a"))
	assert.False(t, tr.Known("b"))
}

func TestSessionTracker_IgnoresAnonymous(t *testing.T) {
	tr := NewSessionTracker(1, time.Hour, nil)
	tr.Touch("")
	tr.Touch(AnonymousSession)
	assert.Zero(t, tr.Active())
}

func TestSessionTracker_SweepIdle(t *testing.T) {
	var evicted []string
	tr := NewSessionTracker(10, time.Minute, func(id string) { evicted = append(evicted, id) })
	clock := newClock()
	tr.now = clock.Now

	tr.Touch("stale")
	clock.Advance(2 * time.Minute)
	tr.Touch("fresh")

	assert.Equal(t, 1, tr.Sweep())
	assert.Equal(t, []string{"stale"}, evicted)
	assert.True(t, tr.Known("fresh"))
}

func TestSessionTracker_EvictionPurgesPrivateEntries(t *testing.T) {
	store, _ := newTestStore(testConfig())
	tr := NewSessionTracker(1, 0, func(id string) { store.ClearSession(id) })

	tr.Touch("a")
	key, _, err := store.Set(params("private"), "a's data", SetOptions{SessionID: "a"})
	require.NoError(t, err)
	anonKey, _, err := store.Set(params("shared"), "everyone's", SetOptions{})
	require.NoError(t, err)

	tr.Touch("b")

	_, ok := store.Get(key, "a")
	assert.False(t, ok, "evicted session's entries are purged")
	_, ok = store.Get(anonKey, "b")
	assert.True(t, ok)
	assert.Zero(t, tr.Sweep(), "zero idle TTL disables sweeping")
}
