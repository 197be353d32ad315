// Package dictionary implements the guaranteed, non-probabilistic
// redaction layer (C3): administrator-supplied terms matched with
// confidence exactly 1.0.
//
// Reads take a shared, atomically-swapped view of a length-bucketed index
// so that many concurrent readers never block on the few writers — the
// same discipline a teacher example used for its in-memory token cache
// layered over a durable backing store.
package dictionary

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"anonamoose/internal/storage"
	"anonamoose/internal/tokenizer"

	"github.com/google/uuid"
)

// Entry is one dictionary rule.
type Entry struct {
	ID            string    `json:"id"`
	Term          string    `json:"term"`
	Replacement   string    `json:"replacement,omitempty"`
	CaseSensitive bool      `json:"caseSensitive"`
	WholeWord     bool      `json:"wholeWord"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Detection is one dictionary-layer match.
type Detection struct {
	Layer      string
	Category   string
	Value      string
	StartIndex int
	EndIndex   int
	Confidence float64
}

// Token is a newly minted placeholder binding produced by a redact call.
type Token struct {
	Placeholder string
	Original    string
	Layer       string
	Category    string
}

// ErrEmptyTerm and ErrTermTooLong are returned by Add for malformed terms.
var (
	ErrEmptyTerm   = fmt.Errorf("dictionary: term must not be empty")
	ErrTermTooLong = fmt.Errorf("dictionary: term exceeds 1000 characters")
)

const maxTermLength = 1000

// bucketEntry is one indexed, enabled term.
type bucketEntry struct {
	entry    Entry
	lower    string // lowercase term, used for matching and dedup
}

// index is an immutable snapshot of the enabled-term index, swapped
// atomically on every write.
type index struct {
	buckets map[int][]bucketEntry // keyed by lowercase term length, longest-first within ties not required
	order   []Entry               // all entries (enabled and disabled) in insertion order
}

// Dictionary is the C3 layer: a length-bucketed hash index over enabled
// terms, durable via internal/storage.
type Dictionary struct {
	store *storage.Store

	mu  sync.Mutex // guards writers; readers load the atomic snapshot
	idx atomicIndex
}

// atomicIndex is a tiny copy-on-write pointer, avoiding a dependency on
// sync/atomic.Pointer generics quirks across the supported Go version.
type atomicIndex struct {
	mu   sync.RWMutex
	snap *index
}

func (a *atomicIndex) load() *index {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

func (a *atomicIndex) store(idx *index) {
	a.mu.Lock()
	a.snap = idx
	a.mu.Unlock()
}

// New constructs a Dictionary backed by store, loading any persisted
// entries into the in-memory index.
func New(store *storage.Store) (*Dictionary, error) {
	d := &Dictionary{store: store}
	entries, err := d.load()
	if err != nil {
		return nil, fmt.Errorf("dictionary: load: %w", err)
	}
	d.idx.store(buildIndex(entries))
	return d, nil
}

func (d *Dictionary) load() ([]Entry, error) {
	blob, err := d.store.GetDictionaryRaw()
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (d *Dictionary) persist(entries []Entry) error {
	blob, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return d.store.PutDictionaryRaw(blob)
}

func buildIndex(entries []Entry) *index {
	idx := &index{buckets: map[int][]bucketEntry{}, order: append([]Entry(nil), entries...)}
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		lower := strings.ToLower(e.Term)
		idx.buckets[len(lower)] = append(idx.buckets[len(lower)], bucketEntry{entry: e, lower: lower})
	}
	return idx
}

// Add persists enabled entries to durable storage and the in-memory index.
// Disabled entries are removed from the index (but kept in storage with
// Enabled=false). An id collision upserts (idempotent); a lowercase-term
// collision against a different id is reported via ErrDuplicateTerm so the
// server-facing layer can answer 409.
func (d *Dictionary) Add(entries []Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, err := d.load()
	if err != nil {
		return fmt.Errorf("dictionary: add: %w", err)
	}
	byLowerTerm := map[string]Entry{}
	byID := map[string]int{}
	for i, e := range current {
		byID[e.ID] = i
		if e.Enabled {
			byLowerTerm[strings.ToLower(e.Term)] = e
		}
	}

	for _, e := range entries {
		if strings.TrimSpace(e.Term) == "" {
			return ErrEmptyTerm
		}
		if len([]rune(e.Term)) > maxTermLength {
			return ErrTermTooLong
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		lower := strings.ToLower(e.Term)
		if e.Enabled {
			if existing, ok := byLowerTerm[lower]; ok && existing.ID != e.ID {
				return &ErrDuplicateTerm{Term: e.Term}
			}
		}
		if i, ok := byID[e.ID]; ok {
			current[i] = e
		} else {
			byID[e.ID] = len(current)
			current = append(current, e)
		}
		if e.Enabled {
			byLowerTerm[lower] = e
		}
	}

	if err := d.persist(current); err != nil {
		return fmt.Errorf("dictionary: persist: %w", err)
	}
	d.idx.store(buildIndex(current))
	return nil
}

// ErrDuplicateTerm is returned when Add is given an enabled term that
// already exists (case-insensitive) under a different id.
type ErrDuplicateTerm struct{ Term string }

func (e *ErrDuplicateTerm) Error() string {
	return fmt.Sprintf("dictionary: term %q already exists", e.Term)
}

// RemoveByID deletes entries by id.
func (d *Dictionary) RemoveByID(ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return d.filterLocked(func(e Entry) bool { return !want[e.ID] })
}

// RemoveByTerm deletes entries by lowercase term equality.
func (d *Dictionary) RemoveByTerm(terms []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	want := map[string]bool{}
	for _, t := range terms {
		want[strings.ToLower(t)] = true
	}
	return d.filterLocked(func(e Entry) bool { return !want[strings.ToLower(e.Term)] })
}

// Clear removes every entry.
func (d *Dictionary) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filterLocked(func(Entry) bool { return false })
}

func (d *Dictionary) filterLocked(keep func(Entry) bool) error {
	current, err := d.load()
	if err != nil {
		return fmt.Errorf("dictionary: filter: %w", err)
	}
	out := current[:0:0]
	for _, e := range current {
		if keep(e) {
			out = append(out, e)
		}
	}
	if err := d.persist(out); err != nil {
		return fmt.Errorf("dictionary: persist: %w", err)
	}
	d.idx.store(buildIndex(out))
	return nil
}

// List returns all entries in insertion order.
func (d *Dictionary) List() []Entry {
	idx := d.idx.load()
	return append([]Entry(nil), idx.order...)
}

// HasTerm is a case-insensitive membership test over enabled entries.
func (d *Dictionary) HasTerm(term string) bool {
	idx := d.idx.load()
	lower := strings.ToLower(term)
	for _, be := range idx.buckets[len(lower)] {
		if be.lower == lower {
			return true
		}
	}
	return false
}

// Redact performs a single left-to-right scan over text, matching the
// longest available bucket length first at each position, and returns the
// rewritten text, newly minted tokens, and detections. Replacement happens
// right-to-left internally so earlier indices stay valid while the scan
// itself proceeds left-to-right.
func (d *Dictionary) Redact(tok *tokenizer.Tokenizer, text string) (string, []Token, []Detection) {
	idx := d.idx.load()
	if len(idx.buckets) == 0 || text == "" {
		return text, nil, nil
	}

	maxLen := 0
	for l := range idx.buckets {
		if l > maxLen {
			maxLen = l
		}
	}

	type span struct {
		start, end int
		entry      Entry
	}
	var spans []span

	runes := []rune(text)
	n := len(runes)
	i := 0
	for i < n {
		matched := false
		for length := maxLen; length >= 1; length-- {
			if i+length > n {
				continue
			}
			candidate := string(runes[i : i+length])
			lower := strings.ToLower(candidate)
			bucket := idx.buckets[length]
			if len(bucket) == 0 {
				continue
			}
			for _, be := range bucket {
				if be.lower != lower {
					continue
				}
				if be.entry.CaseSensitive && candidate != be.entry.Term {
					continue
				}
				if be.entry.WholeWord {
					if !isWordBoundary(runes, i) || !isWordBoundary(runes, i+length) {
						continue
					}
				}
				spans = append(spans, span{start: i, end: i + length, entry: be.entry})
				i += length
				matched = true
				break
			}
			if matched {
				break
			}
		}
		if !matched {
			i++
		}
	}

	if len(spans) == 0 {
		return text, nil, nil
	}

	var tokens []Token
	var detections []Detection
	// Byte-offset conversion: operate on the rune slice end-to-end, then
	// rebuild the string once, right-to-left, so indices stay valid.
	result := append([]rune(nil), runes...)
	for k := len(spans) - 1; k >= 0; k-- {
		s := spans[k]
		original := string(runes[s.start:s.end])
		placeholder := tok.NewPlaceholder()
		tokens = append(tokens, Token{Placeholder: placeholder, Original: original, Layer: "Dictionary", Category: "DICTIONARY"})
		detections = append(detections, Detection{
			Layer: "Dictionary", Category: "DICTIONARY", Value: original,
			StartIndex: s.start, EndIndex: s.end, Confidence: 1.0,
		})
		result = append(result[:s.start], append([]rune(placeholder), result[s.end:]...)...)
	}
	// detections/tokens were appended in reverse scan order; restore
	// left-to-right order for the detections. tokens stay in reverse order.
	sort.SliceStable(detections, func(a, b int) bool { return detections[a].StartIndex < detections[b].StartIndex })

	return string(result), tokens, detections
}

func isWordBoundary(runes []rune, pos int) bool {
	if pos <= 0 || pos >= len(runes) {
		return true
	}
	return isWordRune(runes[pos-1]) != isWordRune(runes[pos])
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
