// Package settings implements the C8 settings store: durable, mutable
// key/value configuration for the redaction pipeline, read fresh on every
// redaction call so that reconfiguration never requires a process restart.
//
// Grounded on the teacher's management.DomainRegistry (internal/management/
// management.go) — a mutable, disk-persisted registry guarded by a
// sync.RWMutex and atomically snapshotted — generalized here from a single
// string set to a typed key/value surface over internal/storage.
package settings

import (
	"encoding/json"
	"fmt"
	"sync"

	"anonamoose/internal/storage"
)

// Recognized setting keys, per §4.8.
const (
	KeyEnableDictionary     = "enableDictionary"
	KeyEnableNER            = "enableNER"
	KeyEnableRegex          = "enableRegex"
	KeyEnableNames          = "enableNames"
	KeyNERModel             = "nerModel"
	KeyNERMinConfidence     = "nerMinConfidence"
	KeyLocale               = "locale"
	KeyTokenizePlaceholders = "tokenizePlaceholders"
	KeyPlaceholderPrefix    = "placeholderPrefix"
	KeyPlaceholderSuffix    = "placeholderSuffix"
)

// Snapshot is a live-read view of every recognized setting, returned fresh
// on each call to Get/All — implementations may cache within a single
// Redact call but never across calls (§5).
type Snapshot struct {
	EnableDictionary     bool    `json:"enableDictionary"`
	EnableNER            bool    `json:"enableNER"`
	EnableRegex          bool    `json:"enableRegex"`
	EnableNames          bool    `json:"enableNames"`
	NERModel             string  `json:"nerModel"`
	NERMinConfidence     float64 `json:"nerMinConfidence"`
	Locale               string  `json:"locale"`
	TokenizePlaceholders bool    `json:"tokenizePlaceholders"`
	PlaceholderPrefix    string  `json:"placeholderPrefix"`
	PlaceholderSuffix    string  `json:"placeholderSuffix"`
}

func defaults() Snapshot {
	return Snapshot{
		EnableDictionary:     true,
		EnableNER:            true,
		EnableRegex:          true,
		EnableNames:          true,
		NERModel:             "Xenova/bert-base-NER",
		NERMinConfidence:     0.6,
		Locale:               "",
		TokenizePlaceholders: true,
		PlaceholderPrefix:    "",
		PlaceholderSuffix:    "",
	}
}

// Store is the C8 settings store.
type Store struct {
	backing *storage.Store

	mu         sync.Mutex
	onNERModel []func(model string)
}

// New constructs a Store, seeding durable storage with defaults for any
// recognized key not yet present.
func New(backing *storage.Store) (*Store, error) {
	s := &Store{backing: backing}
	existing, err := backing.AllSettings()
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	def := defaults()
	defMap := toMap(def)
	for key, value := range defMap {
		if _, ok := existing[key]; ok {
			continue
		}
		if err := s.putRaw(key, value); err != nil {
			return nil, fmt.Errorf("settings: seed %s: %w", key, err)
		}
	}
	return s, nil
}

// OnNERModelChange registers a callback invoked whenever the nerModel key
// changes, so C4's lazily-initialized handle can be invalidated.
func (s *Store) OnNERModelChange(fn func(model string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNERModel = append(s.onNERModel, fn)
}

// All returns a fresh snapshot of every recognized setting.
func (s *Store) All() (Snapshot, error) {
	raw, err := s.backing.AllSettings()
	if err != nil {
		return Snapshot{}, fmt.Errorf("settings: read: %w", err)
	}
	snap := defaults()
	applyRaw(&snap, raw)
	return snap, nil
}

// Get returns the raw JSON value for a single key, and whether it exists.
func (s *Store) Get(key string) (json.RawMessage, bool, error) {
	v, err := s.backing.GetSetting(key)
	if err != nil {
		return nil, false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return v, v != nil, nil
}

// Update applies a partial key/value map (only provided keys change) and
// returns the resulting snapshot. Changing nerModel fires registered
// callbacks so the NER layer can reset its handle.
func (s *Store) Update(partial map[string]json.RawMessage) (Snapshot, error) {
	for key, value := range partial {
		if !isRecognizedKey(key) {
			continue
		}
		if err := s.putRaw(key, value); err != nil {
			return Snapshot{}, fmt.Errorf("settings: update %s: %w", key, err)
		}
	}
	snap, err := s.All()
	if err != nil {
		return Snapshot{}, err
	}
	if _, changed := partial[KeyNERModel]; changed {
		s.mu.Lock()
		callbacks := append([]func(string){}, s.onNERModel...)
		s.mu.Unlock()
		for _, fn := range callbacks {
			fn(snap.NERModel)
		}
	}
	return snap, nil
}

func (s *Store) putRaw(key string, value json.RawMessage) error {
	return s.backing.PutSetting(key, value)
}

func isRecognizedKey(key string) bool {
	switch key {
	case KeyEnableDictionary, KeyEnableNER, KeyEnableRegex, KeyEnableNames,
		KeyNERModel, KeyNERMinConfidence, KeyLocale, KeyTokenizePlaceholders,
		KeyPlaceholderPrefix, KeyPlaceholderSuffix:
		return true
	default:
		return false
	}
}

func toMap(s Snapshot) map[string]json.RawMessage {
	encode := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	return map[string]json.RawMessage{
		KeyEnableDictionary:     encode(s.EnableDictionary),
		KeyEnableNER:            encode(s.EnableNER),
		KeyEnableRegex:          encode(s.EnableRegex),
		KeyEnableNames:          encode(s.EnableNames),
		KeyNERModel:             encode(s.NERModel),
		KeyNERMinConfidence:     encode(s.NERMinConfidence),
		KeyLocale:               encode(s.Locale),
		KeyTokenizePlaceholders: encode(s.TokenizePlaceholders),
		KeyPlaceholderPrefix:    encode(s.PlaceholderPrefix),
		KeyPlaceholderSuffix:    encode(s.PlaceholderSuffix),
	}
}

func applyRaw(snap *Snapshot, raw map[string]json.RawMessage) {
	if v, ok := raw[KeyEnableDictionary]; ok {
		json.Unmarshal(v, &snap.EnableDictionary)
	}
	if v, ok := raw[KeyEnableNER]; ok {
		json.Unmarshal(v, &snap.EnableNER)
	}
	if v, ok := raw[KeyEnableRegex]; ok {
		json.Unmarshal(v, &snap.EnableRegex)
	}
	if v, ok := raw[KeyEnableNames]; ok {
		json.Unmarshal(v, &snap.EnableNames)
	}
	if v, ok := raw[KeyNERModel]; ok {
		json.Unmarshal(v, &snap.NERModel)
	}
	if v, ok := raw[KeyNERMinConfidence]; ok {
		json.Unmarshal(v, &snap.NERMinConfidence)
	}
	if v, ok := raw[KeyLocale]; ok {
		json.Unmarshal(v, &snap.Locale)
	}
	if v, ok := raw[KeyTokenizePlaceholders]; ok {
		json.Unmarshal(v, &snap.TokenizePlaceholders)
	}
	if v, ok := raw[KeyPlaceholderPrefix]; ok {
		json.Unmarshal(v, &snap.PlaceholderPrefix)
	}
	if v, ok := raw[KeyPlaceholderSuffix]; ok {
		json.Unmarshal(v, &snap.PlaceholderSuffix)
	}
}
