// Package storage wraps a single embedded, single-writer, write-ahead-log
// engine (bbolt) behind three logical tables — sessions, settings, and
// dictionary — matching the persisted-state layout in the external
// interface contract. It generalizes the teacher's single-bucket bbolt
// cache (internal/anonymizer/cache.go) from one KV bucket to three.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSessions   = []byte("sessions")
	bucketSettings   = []byte("settings")
	bucketDictionary = []byte("dictionary")
)

// Store is the durable backing store for C3, C7, and C8.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures all
// three buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSessions, bucketSettings, bucketDictionary} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- sessions ---

// PutSessionRaw stores the raw JSON blob for a session row.
func (s *Store) PutSessionRaw(sessionID string, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put([]byte(sessionID), blob)
	})
}

// GetSessionRaw returns the raw JSON blob for a session row, or nil if absent.
func (s *Store) GetSessionRaw(sessionID string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSessions).Get([]byte(sessionID))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// DeleteSessionRaw removes a session row. Returns whether it existed.
func (s *Store) DeleteSessionRaw(sessionID string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(sessionID)) != nil {
			existed = true
		}
		return b.Delete([]byte(sessionID))
	})
	return existed, err
}

// DeleteAllSessions removes every session row, returning the count removed.
func (s *Store) DeleteAllSessions() (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		c := b.Cursor()
		var keys [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// ForEachSession invokes fn with each raw session blob. Iteration stops if
// fn returns an error.
func (s *Store) ForEachSession(fn func(sessionID string, blob []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// --- settings ---

// PutSetting stores a single setting's JSON-encoded value.
func (s *Store) PutSetting(key string, value json.RawMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), value)
	})
}

// GetSetting returns a single setting's raw value, or nil if absent.
func (s *Store) GetSetting(key string) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get([]byte(key))
		if v != nil {
			out = append(json.RawMessage(nil), v...)
		}
		return nil
	})
	return out, err
}

// AllSettings returns every stored setting key/value pair.
func (s *Store) AllSettings() (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).ForEach(func(k, v []byte) error {
			out[string(k)] = append(json.RawMessage(nil), v...)
			return nil
		})
	})
	return out, err
}

// --- dictionary ---
//
// The dictionary bucket stores the entire entry list under one key, since
// the in-memory index is rebuilt wholesale on every write (§4.3 requires
// atomic swap-on-write, not per-row transactions). Callers marshal/
// unmarshal their own Entry type; storage only moves bytes, which avoids an
// import cycle (the dictionary package imports storage, not vice versa).

var dictionaryKey = []byte("entries")

// PutDictionaryRaw persists the full dictionary blob, replacing whatever
// was stored before.
func (s *Store) PutDictionaryRaw(blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDictionary).Put(dictionaryKey, blob)
	})
}

// GetDictionaryRaw returns the persisted dictionary blob, or nil if empty.
func (s *Store) GetDictionaryRaw() ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDictionary).Get(dictionaryKey)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}
