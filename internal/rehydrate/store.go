// Package rehydrate implements the durable rehydration store (C7): a
// sessionId -> Session mapping with TTL management, background sweeping,
// and case-insensitive original deduplication.
//
// Grounded on the teacher's in-memory session map
// (internal/anonymizer/anonymizer.go, sessions map[string]map[string]string
// guarded by sessionMu sync.RWMutex), promoted to a durable, per-session
// upsert over internal/storage with the same read/write lock discipline.
package rehydrate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"anonamoose/internal/storage"

	"github.com/google/uuid"
)

// sessionIDPattern matches the canonical 36-character lowercase-hex UUID
// shape required by §3.
var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidSessionID reports whether id matches the canonical UUID shape.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// ErrInvalidInput is returned by Store/Extend when given a malformed
// session ID, per the spec's decision to fail loud there while Retrieve
// stays quiet.
var ErrInvalidInput = fmt.Errorf("rehydrate: invalid session id")

const (
	// DefaultTTL is used when a caller does not specify one.
	DefaultTTL = time.Hour
	// MaxTTL is the maximum accepted by the administrative surface.
	MaxTTL = 24 * time.Hour
)

// TokenBinding is a reversible placeholder<->original mapping.
type TokenBinding struct {
	Placeholder string            `json:"placeholder"`
	Original    string            `json:"original"`
	Layer       string            `json:"layer"`
	Category    string            `json:"category"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Session is the rehydration unit for one logical conversation.
type Session struct {
	SessionID      string         `json:"sessionId"`
	Tokens         []TokenBinding `json:"tokens"`
	CreatedAt      time.Time      `json:"createdAt"`
	ExpiresAt      time.Time      `json:"expiresAt"`
	LastAccessedAt time.Time      `json:"lastAccessedAt"`
}

// Redacted returns a copy of the session with every original replaced by
// "[REDACTED]", for the management listing endpoints that must never leak
// real values.
func (s Session) Redacted() Session {
	out := s
	out.Tokens = make([]TokenBinding, len(s.Tokens))
	for i, tb := range s.Tokens {
		tb.Original = "[REDACTED]"
		out.Tokens[i] = tb
	}
	return out
}

// Store is the C7 rehydration store.
type Store struct {
	backing *storage.Store

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-session write serialization

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New constructs a Store over the shared durable backing store and starts
// the 60-second expiry sweeper.
func New(backing *storage.Store) *Store {
	s := &Store{
		backing:   backing,
		locks:     map[string]*sync.Mutex{},
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Close stops the background sweeper.
func (s *Store) Close() {
	close(s.stopSweep)
	<-s.sweepDone
}

func (s *Store) sweepLoop() {
	defer close(s.sweepDone)
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Store) sweepExpired() {
	now := time.Now()
	var expired []string
	_ = s.backing.ForEachSession(func(id string, blob []byte) error {
		var sess Session
		if err := json.Unmarshal(blob, &sess); err != nil {
			return nil
		}
		if now.After(sess.ExpiresAt) {
			expired = append(expired, id)
		}
		return nil
	})
	for _, id := range expired {
		_, _ = s.backing.DeleteSessionRaw(id)
	}
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Store merges newTokens into the session, creating it if absent.
// Deduplication is by case-insensitive original: an original already
// present in the session causes the new binding to be dropped rather than
// re-minted. expiresAt is refreshed to now+ttl and lastAccessedAt to now.
func (s *Store) Store(sessionID string, newTokens []TokenBinding, ttl time.Duration, layer, category string, meta map[string]string) (Session, error) {
	if !ValidSessionID(sessionID) {
		return Session{}, ErrInvalidInput
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	sess, found, err := s.readLocked(sessionID)
	if err != nil {
		return Session{}, err
	}
	if !found {
		sess = Session{SessionID: sessionID, CreatedAt: now}
	}

	existingLower := make(map[string]bool, len(sess.Tokens))
	for _, tb := range sess.Tokens {
		existingLower[strings.ToLower(tb.Original)] = true
	}
	for _, tb := range newTokens {
		lower := strings.ToLower(tb.Original)
		if existingLower[lower] {
			continue
		}
		existingLower[lower] = true
		if tb.Layer == "" {
			tb.Layer = layer
		}
		if tb.Category == "" {
			tb.Category = category
		}
		if tb.Meta == nil && meta != nil {
			tb.Meta = meta
		}
		sess.Tokens = append(sess.Tokens, tb)
	}
	sess.ExpiresAt = now.Add(ttl)
	sess.LastAccessedAt = now

	if err := s.writeLocked(sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Retrieve returns the session iff it exists and has not expired. An
// invalid session ID shape is treated as "not found", not an error.
func (s *Store) Retrieve(sessionID string) (Session, bool, error) {
	if !ValidSessionID(sessionID) {
		return Session{}, false, nil
	}
	sess, found, err := s.readLocked(sessionID)
	if err != nil || !found {
		return Session{}, false, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_, _ = s.backing.DeleteSessionRaw(sessionID)
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s *Store) readLocked(sessionID string) (Session, bool, error) {
	blob, err := s.backing.GetSessionRaw(sessionID)
	if err != nil {
		return Session{}, false, fmt.Errorf("rehydrate: read: %w", err)
	}
	if blob == nil {
		return Session{}, false, nil
	}
	var sess Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		return Session{}, false, fmt.Errorf("rehydrate: decode: %w", err)
	}
	return sess, true, nil
}

func (s *Store) writeLocked(sess Session) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("rehydrate: encode: %w", err)
	}
	if err := s.backing.PutSessionRaw(sess.SessionID, blob); err != nil {
		return fmt.Errorf("rehydrate: write: %w", err)
	}
	return nil
}

// Hydrate replaces every placeholder occurrence in text with its original,
// for the given session's bindings. Substitution order does not matter
// because placeholders are pairwise disjoint by construction.
func (s *Store) Hydrate(text, sessionID string) (string, error) {
	sess, found, err := s.Retrieve(sessionID)
	if err != nil {
		return text, err
	}
	if !found {
		return text, nil
	}
	return HydrateWith(text, sess.Tokens), nil
}

// HydrateWith substitutes placeholders using an already-loaded binding
// list; Hydrate calls it after Retrieve. (The proxy server hydrates from
// its own in-memory map via hydrateWithMap instead.)
func HydrateWith(text string, tokens []TokenBinding) string {
	if len(tokens) == 0 {
		return text
	}
	for _, tb := range tokens {
		if tb.Placeholder == "" {
			continue
		}
		text = strings.ReplaceAll(text, tb.Placeholder, tb.Original)
	}
	return text
}

// Delete removes a session, returning whether it existed.
func (s *Store) Delete(sessionID string) (bool, error) {
	existed, err := s.backing.DeleteSessionRaw(sessionID)
	if err != nil {
		return false, fmt.Errorf("rehydrate: delete: %w", err)
	}
	return existed, nil
}

// DeleteAll removes every session, returning the count removed.
func (s *Store) DeleteAll() (int, error) {
	n, err := s.backing.DeleteAllSessions()
	if err != nil {
		return 0, fmt.Errorf("rehydrate: delete all: %w", err)
	}
	return n, nil
}

// Extend refreshes a session's TTL, returning whether it existed.
func (s *Store) Extend(sessionID string, ttl time.Duration) (bool, error) {
	if !ValidSessionID(sessionID) {
		return false, ErrInvalidInput
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, found, err := s.readLocked(sessionID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	sess.ExpiresAt = time.Now().Add(ttl)
	sess.LastAccessedAt = time.Now()
	if err := s.writeLocked(sess); err != nil {
		return false, err
	}
	return true, nil
}

// Size returns the number of stored sessions (including any not yet swept
// past expiry).
func (s *Store) Size() (int, error) {
	count := 0
	err := s.backing.ForEachSession(func(string, []byte) error {
		count++
		return nil
	})
	return count, err
}

// GetAll returns every non-expired session ordered by CreatedAt descending.
func (s *Store) GetAll() ([]Session, error) {
	now := time.Now()
	var out []Session
	err := s.backing.ForEachSession(func(id string, blob []byte) error {
		var sess Session
		if err := json.Unmarshal(blob, &sess); err != nil {
			return nil
		}
		if now.After(sess.ExpiresAt) {
			return nil
		}
		out = append(out, sess)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rehydrate: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Search returns sessions whose bindings match query case-insensitively in
// original, category, or meta values.
func (s *Store) Search(query string) ([]Session, error) {
	q := strings.ToLower(query)
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, sess := range all {
		for _, tb := range sess.Tokens {
			if strings.Contains(strings.ToLower(tb.Original), q) ||
				strings.Contains(strings.ToLower(tb.Category), q) {
				out = append(out, sess)
				break
			}
			matched := false
			for _, v := range tb.Meta {
				if strings.Contains(strings.ToLower(v), q) {
					matched = true
					break
				}
			}
			if matched {
				out = append(out, sess)
				break
			}
		}
	}
	return out, nil
}

// NewSessionID mints a fresh canonical session id.
func NewSessionID() string {
	return uuid.NewString()
}
