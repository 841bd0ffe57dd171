package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{
		TTL:                  2 * time.Hour,
		MaxEntries:           100,
		MaxTotalSize:         10 << 20,
		MaxEntrySize:         1 << 20,
		CompressionThreshold: 1 << 10,
	}
}

func newTestStore(cfg Config) (*Store, *fakeClock) {
	s := New(cfg)
	clock := newClock()
	s.now = clock.Now
	return s, clock
}

func params(target string) map[string]any {
	return map[string]any{"tool": "roast_codebase", "target": target}
}

// ─── Keys ───────────────────────────────────────────────────────────────

func TestGenerateCacheKey_IgnoresOrderAndPagination(t *testing.T) {
	a := map[string]any{"tool": "roast_idea", "idea": "x", "models": map[string]any{"codex": "o3", "claude": "opus"}}
	b := map[string]any{
		"models": map[string]any{"claude": "opus", "codex": "o3"},
		"idea":   "x",
		"tool":   "roast_idea",
		"offset": 500, "limit": 1000, "cursor": "abc",
		"force_refresh": true, "context_id": "ctx", "resume": true,
	}
	ka, err := GenerateCacheKey(a)
	require.NoError(t, err)
	kb, err := GenerateCacheKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
	assert.Len(t, ka, 64)
}

func TestGenerateCacheKey_DistinctValues(t *testing.T) {
	seen := map[string]string{}
	for _, v := range []any{"a", "b", "A", 1, 1.5, true, false, []string{"a"}, ""} {
		k, err := GenerateCacheKey(map[string]any{"tool": "t", "target": v})
		require.NoError(t, err)
		label := fmt.Sprintf("%#v", v)
		if prev, dup := seen[k]; dup {
			t.Fatalf("values %s and %s collided", prev, label)
		}
		seen[k] = label
	}
}

func TestGenerateCacheKey_Unmarshalable(t *testing.T) {
	_, err := GenerateCacheKey(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

// ─── Round trip ─────────────────────────────────────────────────────────

func TestSetGet_RoundTrip(t *testing.T) {
	s, _ := newTestStore(testConfig())
	cases := map[string]string{
		"empty":      "",
		"small":      "brutal truth",
		"unicode":    "критика 批评 🔥",
		"compressed": strings.Repeat("The architecture is wrong. ", 2000),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			key, ctxID, err := s.Set(params(name), content, SetOptions{})
			require.NoError(t, err)
			assert.NotEmpty(t, ctxID)

			got, ok := s.Get(key, "")
			require.True(t, ok)
			assert.Equal(t, content, got)

			rec, ok := s.GetByContextID(ctxID, "")
			require.True(t, ok)
			assert.Equal(t, content, rec.Content)
			assert.Equal(t, name == "compressed", rec.Compressed)
			assert.Equal(t, int64(len(content)), rec.OriginalSize)
		})
	}
}

func TestSet_CompressesAboveThreshold(t *testing.T) {
	s, _ := newTestStore(testConfig())
	content := strings.Repeat("x", 50_000)
	key, _, err := s.Set(params("big"), content, SetOptions{})
	require.NoError(t, err)

	rec, ok := s.Lookup(key, "")
	require.True(t, ok)
	assert.True(t, rec.Compressed)
	assert.Less(t, rec.Size, int64(len(content)))
	assert.Equal(t, rec.Size, s.Stats().TotalSize)
}

func TestSet_IdempotentKey(t *testing.T) {
	s, _ := newTestStore(testConfig())
	k1, c1, err := s.Set(params("p"), "c", SetOptions{})
	require.NoError(t, err)
	k2, c2, err := s.Set(params("p"), "c", SetOptions{})
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, c1, c2)
	assert.Equal(t, 1, s.Stats().Entries, "one live entry per key")
	_, ok := s.GetByContextID(c1, "")
	assert.False(t, ok, "replaced entry's handles are dropped")
}

func TestSet_ExplicitKey(t *testing.T) {
	s, _ := newTestStore(testConfig())
	key, _, err := s.Set(nil, "content", SetOptions{Key: "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", key)
	got, ok := s.Get("custom", "")
	assert.True(t, ok)
	assert.Equal(t, "content", got)
}

func TestSet_RejectsOversizedPayload(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntrySize = 100
	s, _ := newTestStore(cfg)

	_, _, err := s.Set(params("big"), strings.Repeat("a", 101), SetOptions{})
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)
	assert.Zero(t, s.Stats().Entries)

	_, _, err = s.Set(params("ok"), strings.Repeat("a", 100), SetOptions{})
	assert.NoError(t, err)
}

// ─── Sessions ───────────────────────────────────────────────────────────

func TestSessionIsolation(t *testing.T) {
	s, _ := newTestStore(testConfig())

	keyA, ctxA, err := s.Set(params("a"), "secret-a", SetOptions{SessionID: "session-a"})
	require.NoError(t, err)

	_, ok := s.Get(keyA, "session-a")
	assert.True(t, ok, "owner reads")
	_, ok = s.Get(keyA, "session-b")
	assert.False(t, ok, "other session misses")
	_, ok = s.Get(keyA, "")
	assert.False(t, ok, "anonymous misses")
	_, ok = s.GetByContextID(ctxA, "session-b")
	assert.False(t, ok, "handle lookup is session checked too")

	keyAnon, ctxAnon, err := s.Set(params("anon"), "public", SetOptions{})
	require.NoError(t, err)
	for _, sess := range []string{"", "session-a", "session-b", AnonymousSession} {
		got, ok := s.Get(keyAnon, sess)
		assert.True(t, ok, "anonymous entry readable by %q", sess)
		assert.Equal(t, "public", got)
		_, ok = s.GetByContextID(ctxAnon, sess)
		assert.True(t, ok)
	}
}

func TestClearSession(t *testing.T) {
	s, _ := newTestStore(testConfig())
	_, _, _ = s.Set(params("1"), "x", SetOptions{SessionID: "a"})
	_, _, _ = s.Set(params("2"), "y", SetOptions{SessionID: "a"})
	_, _, _ = s.Set(params("3"), "z", SetOptions{SessionID: "b"})
	_, _, _ = s.Set(params("4"), "w", SetOptions{})

	assert.Equal(t, 2, s.ClearSession("a"))
	assert.Equal(t, 0, s.ClearSession(""), "anonymous entries are shared")
	assert.Equal(t, 2, s.Stats().Entries)
	assert.Equal(t, 2, s.Clear())
	assert.Zero(t, s.Stats().TotalSize)
}

// ─── Governance ─────────────────────────────────────────────────────────

func TestLRU_TotalSizeBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotalSize = 1000
	cfg.CompressionThreshold = 0
	s, clock := newTestStore(cfg)

	keys := make([]string, 5)
	for i := range keys {
		k, _, err := s.Set(params(fmt.Sprint(i)), strings.Repeat("z", 300), SetOptions{})
		require.NoError(t, err)
		keys[i] = k
		clock.Advance(time.Second)

		// Touch the first entry so it stays hot.
		if i > 0 {
			_, ok := s.Get(keys[0], "")
			require.True(t, ok)
		}
		assert.LessOrEqual(t, s.Stats().TotalSize, cfg.MaxTotalSize)
	}

	_, ok := s.Get(keys[0], "")
	assert.True(t, ok, "recently touched entry survives")
	_, ok = s.Get(keys[1], "")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = s.Get(keys[4], "")
	assert.True(t, ok)
	assert.Equal(t, 3, s.Stats().Entries)
	assert.Equal(t, int64(900), s.Stats().TotalSize)
}

func TestCountCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntries = 3
	s, _ := newTestStore(cfg)

	var keys []string
	for i := 0; i < 5; i++ {
		k, _, err := s.Set(params(fmt.Sprint(i)), "v", SetOptions{})
		require.NoError(t, err)
		keys = append(keys, k)
	}
	assert.Equal(t, 3, s.Stats().Entries)
	assert.Equal(t, int64(2), s.Stats().Evictions)
	_, ok := s.Get(keys[0], "")
	assert.False(t, ok)
	_, ok = s.Get(keys[4], "")
	assert.True(t, ok)
}

func TestTTL(t *testing.T) {
	s, clock := newTestStore(testConfig())
	key, ctxID, err := s.Set(params("ttl"), "soon gone", SetOptions{})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, ok := s.Get(key, "")
	assert.True(t, ok, "readable exactly at TTL")

	clock.Advance(time.Nanosecond)
	_, ok = s.Get(key, "")
	assert.False(t, ok, "expired strictly after TTL")
	_, ok = s.GetByContextID(ctxID, "")
	assert.False(t, ok)
	assert.Zero(t, s.Stats().Entries, "expired entry is dropped on read")
}

func TestSweep(t *testing.T) {
	s, clock := newTestStore(testConfig())
	_, _, _ = s.Set(params("old"), "a", SetOptions{})
	clock.Advance(time.Hour)
	_, _, _ = s.Set(params("new"), "b", SetOptions{})
	clock.Advance(90 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Stats().Entries)
	assert.Equal(t, int64(1), s.Stats().Expired)
}

// ─── Handles ────────────────────────────────────────────────────────────

func TestCreateAlias(t *testing.T) {
	s, _ := newTestStore(testConfig())
	key, ctxID, err := s.Set(params("alias"), "shared", SetOptions{SessionID: "a"})
	require.NoError(t, err)

	alias, err := s.CreateAlias(key, "a")
	require.NoError(t, err)
	assert.NotEqual(t, ctxID, alias)

	rec, ok := s.GetByContextID(alias, "a")
	require.True(t, ok)
	assert.Equal(t, "shared", rec.Content)
	assert.Equal(t, ctxID, rec.ContextID, "alias resolves to the same entry")

	_, err = s.CreateAlias(key, "b")
	assert.ErrorIs(t, err, domain.ErrHandleNotFound)
	_, err = s.CreateAlias("missing", "a")
	assert.ErrorIs(t, err, domain.ErrHandleNotFound)

	assert.True(t, s.Delete(key))
	_, ok = s.GetByContextID(alias, "a")
	assert.False(t, ok, "aliases die with their entry")
	assert.Zero(t, s.Stats().Handles)
}

func TestCreateAlias_RetiresOldestPastCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHandles = 3
	s, _ := newTestStore(cfg)
	key, ctxID, err := s.Set(params("hot"), "popular", SetOptions{})
	require.NoError(t, err)

	var aliases []string
	for i := 0; i < 10; i++ {
		alias, err := s.CreateAlias(key, "")
		require.NoError(t, err)
		aliases = append(aliases, alias)
	}

	assert.Equal(t, 3, s.Stats().Handles, "handles stay bounded however often the entry is hit")
	_, ok := s.GetByContextID(ctxID, "")
	assert.True(t, ok, "the original handle is never retired")
	_, ok = s.GetByContextID(aliases[0], "")
	assert.False(t, ok, "the oldest alias is retired first")
	for _, a := range aliases[8:] {
		_, ok = s.GetByContextID(a, "")
		assert.True(t, ok, "the newest aliases stay valid")
	}
}

func TestUpdateByContextID_KeepsHandle(t *testing.T) {
	s, _ := newTestStore(testConfig())
	conv := []Message{{Role: "user", Content: "roast this"}, {Role: "assistant", Content: "v1"}}
	key, ctxID, err := s.Set(params("conv"), "v1", SetOptions{Conversation: conv})
	require.NoError(t, err)
	alias, err := s.CreateAlias(key, "")
	require.NoError(t, err)

	err = s.UpdateByContextID(alias, "", strings.Repeat("v2 ", 1000),
		Message{Role: "user", Content: "and now?"}, Message{Role: "assistant", Content: "v2"})
	require.NoError(t, err)

	rec, ok := s.GetByContextID(ctxID, "")
	require.True(t, ok)
	assert.Equal(t, ctxID, rec.ContextID)
	assert.Equal(t, key, rec.Key)
	assert.True(t, strings.HasPrefix(rec.Content, "v2 "))
	assert.True(t, rec.Compressed)
	require.Len(t, rec.Conversation, 4)
	assert.Equal(t, "and now?", rec.Conversation[2].Content)
	assert.Equal(t, rec.Size, s.Stats().TotalSize)

	err = s.UpdateByContextID("nope", "", "x")
	assert.ErrorIs(t, err, domain.ErrHandleNotFound)
}

func TestUpdateByContextID_SessionChecked(t *testing.T) {
	s, _ := newTestStore(testConfig())
	_, ctxID, err := s.Set(params("p"), "mine", SetOptions{SessionID: "a"})
	require.NoError(t, err)

	err = s.UpdateByContextID(ctxID, "b", "hijacked")
	assert.ErrorIs(t, err, domain.ErrHandleNotFound)
	got, _ := s.GetByContextID(ctxID, "a")
	assert.Equal(t, "mine", got.Content)
}

func TestConcurrentAccess(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotalSize = 5000
	cfg.CompressionThreshold = 0
	s := New(cfg)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				k, _, err := s.Set(params(fmt.Sprintf("%d-%d", g, i%10)), strings.Repeat("q", 100), SetOptions{})
				if err == nil {
					s.Get(k, "")
				}
			}
		}()
	}
	wg.Wait()

	st := s.Stats()
	assert.LessOrEqual(t, st.TotalSize, cfg.MaxTotalSize)
	assert.Equal(t, int64(st.Entries*100), st.TotalSize, "size bookkeeping matches entries")
}

func TestRunJanitor(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = time.Millisecond
	s := New(cfg)
	_, _, _ = s.Set(params("j"), "x", SetOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, 5*time.Millisecond, s)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Stats().Entries == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
