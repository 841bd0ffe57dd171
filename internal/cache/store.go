// Package cache holds analysis results in memory so an expensive run is
// computed once and then paged through, or resumed, by handle.
//
// Entries are owned by a session. An entry owned by AnonymousSession is
// readable by every caller; any other entry only by its owner, and a
// foreign read looks exactly like a miss. Size, count and age are all
// bounded, and one mutex serializes every change to the bookkeeping.
package cache

import (
	"bytes"
	"compress/gzip"
	"container/list"
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// AnonymousSession owns entries written without a caller session.
const AnonymousSession = "anonymous"

// Owner maps an empty session to AnonymousSession.
func Owner(sessionID string) string {
	if sessionID == "" {
		return AnonymousSession
	}
	return sessionID
}

// Config bounds the store.
type Config struct {
	TTL                  time.Duration
	MaxEntries           int
	MaxTotalSize         int64
	MaxEntrySize         int64
	CompressionThreshold int64
	// MaxHandles caps the handles of one entry. Zero selects
	// DefaultMaxHandles.
	MaxHandles int
}

// Message is one turn of a cached conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is a decoded copy of an entry handed to callers.
type Record struct {
	Key            string    `json:"key"`
	ContextID      string    `json:"context_id"`
	Content        string    `json:"-"`
	Compressed     bool      `json:"compressed"`
	Size           int64     `json:"size"`
	OriginalSize   int64     `json:"original_size"`
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Conversation   []Message `json:"conversation,omitempty"`
}

type entry struct {
	key          string
	contextID    string
	data         []byte
	compressed   bool
	logicalSize  int64
	checksum     uint64
	sessionID    string
	createdAt    time.Time
	lastAccessed time.Time
	conversation []Message
	handles      []string
	elem         *list.Element
}

func (e *entry) size() int64 { return int64(len(e.data)) }

// Stats is a point-in-time view of the store.
type Stats struct {
	Entries    int   `json:"entries"`
	Handles    int   `json:"handles"`
	TotalSize  int64 `json:"total_size"`
	MaxSize    int64 `json:"max_size"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Expired    int64 `json:"expired"`
}

// Store is the in-memory response cache.
type Store struct {
	mu        sync.Mutex
	cfg       Config
	byKey     map[string]*entry
	byHandle  map[string]*entry
	lru       *list.List // front is most recently used
	totalSize int64

	hits, misses, evictions, expired int64

	now   func() time.Time
	newID func() string
}

// New creates an empty store.
func New(cfg Config) *Store {
	return &Store{
		cfg:      cfg,
		byKey:    make(map[string]*entry),
		byHandle: make(map[string]*entry),
		lru:      list.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetOptions refine Set.
type SetOptions struct {
	// Key overrides the key derived from params.
	Key          string
	SessionID    string
	Conversation []Message
}

// Set stores content for params and returns its key and a fresh context
// handle. An existing entry under the same key is replaced, along with its
// handles. Payloads above MaxEntrySize are rejected, never truncated.
func (s *Store) Set(params map[string]any, content string, opts SetOptions) (key, contextID string, err error) {
	key = opts.Key
	if key == "" {
		if key, err = GenerateCacheKey(params); err != nil {
			return "", "", err
		}
	}

	e, err := s.encode(content)
	if err != nil {
		return "", "", err
	}
	now := s.now()
	e.key = key
	e.contextID = s.newID()
	e.sessionID = Owner(opts.SessionID)
	e.createdAt = now
	e.lastAccessed = now
	e.conversation = append([]Message(nil), opts.Conversation...)
	e.handles = []string{e.contextID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byKey[key]; ok {
		s.removeLocked(old)
	}
	for s.cfg.MaxEntries > 0 && len(s.byKey) >= s.cfg.MaxEntries {
		s.evictOldestLocked()
	}
	s.makeRoomLocked(e.size(), nil)

	e.elem = s.lru.PushFront(e)
	s.byKey[key] = e
	s.byHandle[e.contextID] = e
	s.totalSize += e.size()
	return key, e.contextID, nil
}

// Get returns the logical content stored under key if the session may
// read it.
func (s *Store) Get(key, sessionID string) (string, bool) {
	r, ok := s.Lookup(key, sessionID)
	if !ok {
		return "", false
	}
	return r.Content, true
}

// Lookup is Get returning the whole record.
func (s *Store) Lookup(key, sessionID string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(s.byKey[key], sessionID)
}

// GetByContextID resolves a handle.
func (s *Store) GetByContextID(contextID, sessionID string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(s.byHandle[contextID], sessionID)
}

// DefaultMaxHandles is the per-entry handle cap when none is configured.
const DefaultMaxHandles = 32

// CreateAlias mints a new handle for the entry under key. The alias shares
// the entry: content, conversation and lifetime. Past the handle cap the
// oldest alias is retired; the handle minted by Set is always kept.
func (s *Store) CreateAlias(key, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.byKey[key]
	if !s.liveLocked(e) || !readable(e, sessionID) {
		return "", domain.Errorf(domain.ErrHandleNotFound, "no cache entry for key %.12s", key)
	}
	id := s.newID()
	e.handles = append(e.handles, id)
	s.byHandle[id] = e

	limit := s.cfg.MaxHandles
	if limit <= 0 {
		limit = DefaultMaxHandles
	}
	for len(e.handles) > limit && len(e.handles) > 1 {
		delete(s.byHandle, e.handles[1])
		e.handles = append(e.handles[:1], e.handles[2:]...)
	}
	return id, nil
}

// UpdateByContextID replaces the content behind a handle and appends
// messages to its conversation. The entry keeps its key and every handle,
// including contextID.
func (s *Store) UpdateByContextID(contextID, sessionID, content string, appended ...Message) error {
	enc, err := s.encode(content)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.byHandle[contextID]
	if !s.liveLocked(e) || !readable(e, sessionID) {
		return domain.Errorf(domain.ErrHandleNotFound, "context %s expired or unknown", contextID)
	}

	s.totalSize -= e.size()
	e.data = enc.data
	e.compressed = enc.compressed
	e.logicalSize = enc.logicalSize
	e.checksum = enc.checksum
	e.conversation = append(e.conversation, appended...)
	e.lastAccessed = s.now()
	s.lru.MoveToFront(e.elem)
	s.makeRoomLocked(e.size(), e)
	s.totalSize += e.size()
	return nil
}

// Delete removes the entry under key. It reports whether one existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byKey[key]
	if ok {
		s.removeLocked(e)
	}
	return ok
}

// ClearSession removes every entry owned by sessionID and returns how many
// were removed. Anonymous entries are shared and are never cleared this
// way.
func (s *Store) ClearSession(sessionID string) int {
	owner := Owner(sessionID)
	if owner == AnonymousSession {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.byKey {
		if e.sessionID == owner {
			s.removeLocked(e)
			n++
		}
	}
	return n
}

// Clear empties the store.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.byKey)
	s.byKey = make(map[string]*entry)
	s.byHandle = make(map[string]*entry)
	s.lru.Init()
	s.totalSize = 0
	return n
}

// Sweep removes expired entries and returns how many it removed. Reads
// already treat expired entries as absent; sweeping only frees memory.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.byKey {
		if s.expiredLocked(e) {
			s.removeLocked(e)
			s.expired++
			n++
		}
	}
	return n
}

// Stats reports counters and sizes.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries:    len(s.byKey),
		Handles:    len(s.byHandle),
		TotalSize:  s.totalSize,
		MaxSize:    s.cfg.MaxTotalSize,
		MaxEntries: s.cfg.MaxEntries,
		Hits:       s.hits,
		Misses:     s.misses,
		Evictions:  s.evictions,
		Expired:    s.expired,
	}
}

// ─── internals (s.mu held) ──────────────────────────────────────────────

func readable(e *entry, sessionID string) bool {
	return e.sessionID == AnonymousSession || e.sessionID == Owner(sessionID)
}

func (s *Store) expiredLocked(e *entry) bool {
	return s.cfg.TTL > 0 && s.now().Sub(e.createdAt) > s.cfg.TTL
}

// liveLocked reports whether e exists and has not expired, dropping it if
// it has.
func (s *Store) liveLocked(e *entry) bool {
	if e == nil {
		return false
	}
	if s.expiredLocked(e) {
		s.removeLocked(e)
		s.expired++
		return false
	}
	return true
}

func (s *Store) readLocked(e *entry, sessionID string) (*Record, bool) {
	if !s.liveLocked(e) || !readable(e, sessionID) {
		s.misses++
		return nil, false
	}
	content, err := decode(e)
	if err != nil {
		log.Printf("WARNING: dropping cache entry %.12s: %v", e.key, err)
		s.removeLocked(e)
		s.misses++
		return nil, false
	}
	e.lastAccessed = s.now()
	s.lru.MoveToFront(e.elem)
	s.hits++

	return &Record{
		Key:            e.key,
		ContextID:      e.contextID,
		Content:        content,
		Compressed:     e.compressed,
		Size:           e.size(),
		OriginalSize:   e.logicalSize,
		SessionID:      e.sessionID,
		CreatedAt:      e.createdAt,
		LastAccessedAt: e.lastAccessed,
		Conversation:   append([]Message(nil), e.conversation...),
	}, true
}

// makeRoomLocked evicts least recently used entries, never keep, until
// need more bytes fit under MaxTotalSize.
func (s *Store) makeRoomLocked(need int64, keep *entry) {
	if s.cfg.MaxTotalSize <= 0 {
		return
	}
	for s.totalSize+need > s.cfg.MaxTotalSize {
		victim := s.oldestLocked(keep)
		if victim == nil {
			return
		}
		s.removeLocked(victim)
		s.evictions++
	}
}

func (s *Store) evictOldestLocked() {
	if victim := s.oldestLocked(nil); victim != nil {
		s.removeLocked(victim)
		s.evictions++
	}
}

func (s *Store) oldestLocked(skip *entry) *entry {
	for el := s.lru.Back(); el != nil; el = el.Prev() {
		if e := el.Value.(*entry); e != skip {
			return e
		}
	}
	return nil
}

func (s *Store) removeLocked(e *entry) {
	if s.byKey[e.key] == e {
		delete(s.byKey, e.key)
	}
	for _, h := range e.handles {
		if s.byHandle[h] == e {
			delete(s.byHandle, h)
		}
	}
	if e.elem != nil {
		s.lru.Remove(e.elem)
		e.elem = nil
		s.totalSize -= e.size()
	}
}

// ─── encoding ───────────────────────────────────────────────────────────

func (s *Store) encode(content string) (e *entry, err error) {
	n := int64(len(content))
	if s.cfg.MaxEntrySize > 0 && n > s.cfg.MaxEntrySize {
		return nil, domain.Errorf(domain.ErrPayloadTooLarge,
			"payload of %d bytes exceeds the %d byte cache entry limit", n, s.cfg.MaxEntrySize)
	}
	defer func() {
		if e != nil && s.cfg.MaxTotalSize > 0 && e.size() > s.cfg.MaxTotalSize {
			e, err = nil, domain.Errorf(domain.ErrPayloadTooLarge,
				"payload of %d bytes exceeds the %d byte cache budget", e.size(), s.cfg.MaxTotalSize)
		}
	}()
	e = &entry{logicalSize: n, checksum: xxhash.Sum64String(content)}
	if s.cfg.CompressionThreshold > 0 && n > s.cfg.CompressionThreshold {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := io.WriteString(zw, content); err != nil {
			return nil, fmt.Errorf("compressing cache payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compressing cache payload: %w", err)
		}
		e.data = buf.Bytes()
		e.compressed = true
		return e, nil
	}
	e.data = []byte(content)
	return e, nil
}

func decode(e *entry) (string, error) {
	content := string(e.data)
	if e.compressed {
		zr, err := gzip.NewReader(bytes.NewReader(e.data))
		if err != nil {
			return "", domain.Wrap(domain.ErrCacheCorrupt, "", err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			return "", domain.Wrap(domain.ErrCacheCorrupt, "", err)
		}
		content = string(raw)
	}
	if xxhash.Sum64String(content) != e.checksum {
		return "", domain.ErrCacheCorrupt
	}
	return content, nil
}

// ─── janitor ────────────────────────────────────────────────────────────

// Sweeper is anything that can drop its expired state.
type Sweeper interface {
	Sweep() int
}

// RunJanitor sweeps each sweeper every interval until ctx is done.
func RunJanitor(ctx context.Context, interval time.Duration, sweepers ...Sweeper) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sw := range sweepers {
				if n := sw.Sweep(); n > 0 {
					log.Printf("[cache] janitor removed %d expired item(s) from %T", n, sw)
				}
			}
		}
	}
}
