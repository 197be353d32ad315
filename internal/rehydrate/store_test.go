package rehydrate

import (
	"path/filepath"
	"testing"
	"time"

	"anonamoose/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	backing, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { backing.Close() })
	s := New(backing)
	t.Cleanup(s.Close)
	return s
}

func TestStoreRejectsInvalidSessionID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Store("not-a-uuid", nil, time.Hour, "Regex", "EMAIL", nil)
	if err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRetrieveInvalidShapeIsNotFoundNotError(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.Retrieve("not-a-uuid")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestStoreDeduplicatesCaseInsensitiveOriginal(t *testing.T) {
	s := newTestStore(t)
	id := NewSessionID()
	_, err := s.Store(id, []TokenBinding{{Placeholder: "P1", Original: "John Smith"}}, time.Hour, "Names", "PERSON", nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	sess, err := s.Store(id, []TokenBinding{{Placeholder: "P2", Original: "john smith"}}, time.Hour, "Names", "PERSON", nil)
	if err != nil {
		t.Fatalf("store second: %v", err)
	}
	if len(sess.Tokens) != 1 {
		t.Fatalf("expected dedup to 1 token, got %d", len(sess.Tokens))
	}
}

func TestUnionAcrossTwoCalls(t *testing.T) {
	s := newTestStore(t)
	id := NewSessionID()
	if _, err := s.Store(id, []TokenBinding{{Placeholder: "P1", Original: "a@b.com"}}, time.Hour, "Regex", "EMAIL", nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := s.Store(id, []TokenBinding{{Placeholder: "P2", Original: "555-1234"}}, time.Hour, "Regex", "US_PHONE", nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	sess, found, err := s.Retrieve(id)
	if err != nil || !found {
		t.Fatalf("retrieve: found=%v err=%v", found, err)
	}
	if len(sess.Tokens) != 2 {
		t.Fatalf("expected union of 2 tokens, got %d", len(sess.Tokens))
	}
}

func TestHydrateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := NewSessionID()
	_, err := s.Store(id, []TokenBinding{{Placeholder: "deadbeefdeadbeef", Original: "secret@example.com"}}, time.Hour, "Regex", "EMAIL", nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	text := "Contact deadbeefdeadbeef for details."
	hydrated, err := s.Hydrate(text, id)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	want := "Contact secret@example.com for details."
	if hydrated != want {
		t.Fatalf("got %q, want %q", hydrated, want)
	}
}

func TestExpiredSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	id := NewSessionID()
	if _, err := s.Store(id, []TokenBinding{{Placeholder: "P1", Original: "x"}}, time.Millisecond, "Regex", "X", nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	_, found, err := s.Retrieve(id)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if found {
		t.Fatal("expected expired session to be not found")
	}
}

func TestExtendRefreshesTTL(t *testing.T) {
	s := newTestStore(t)
	id := NewSessionID()
	if _, err := s.Store(id, []TokenBinding{{Placeholder: "P1", Original: "x"}}, time.Hour, "Regex", "X", nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	ok, err := s.Extend(id, 2*time.Hour)
	if err != nil || !ok {
		t.Fatalf("extend: ok=%v err=%v", ok, err)
	}
	sess, found, err := s.Retrieve(id)
	if err != nil || !found {
		t.Fatalf("retrieve: %v %v", found, err)
	}
	if time.Until(sess.ExpiresAt) < time.Hour {
		t.Fatal("expected extended TTL")
	}
}

func TestDeleteAndDeleteAll(t *testing.T) {
	s := newTestStore(t)
	id1, id2 := NewSessionID(), NewSessionID()
	s.Store(id1, []TokenBinding{{Placeholder: "P1", Original: "x"}}, time.Hour, "Regex", "X", nil)
	s.Store(id2, []TokenBinding{{Placeholder: "P2", Original: "y"}}, time.Hour, "Regex", "X", nil)
	ok, err := s.Delete(id1)
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	n, err := s.DeleteAll()
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining deleted, got %d", n)
	}
}

func TestRedactedHidesOriginals(t *testing.T) {
	sess := Session{Tokens: []TokenBinding{{Original: "secret"}}}
	red := sess.Redacted()
	if red.Tokens[0].Original != "[REDACTED]" {
		t.Fatal("expected original to be masked")
	}
}
