package dictionary

import (
	"path/filepath"
	"testing"
	"time"

	"anonamoose/internal/storage"
	"anonamoose/internal/tokenizer"
)

func newTestDictionary(t *testing.T) *Dictionary {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	d, err := New(store)
	if err != nil {
		t.Fatalf("new dictionary: %v", err)
	}
	return d
}

func TestAddRejectsEmptyTerm(t *testing.T) {
	d := newTestDictionary(t)
	if err := d.Add([]Entry{{Term: "", Enabled: true}}); err != ErrEmptyTerm {
		t.Fatalf("expected ErrEmptyTerm, got %v", err)
	}
}

func TestAddRejectsOversizedTerm(t *testing.T) {
	d := newTestDictionary(t)
	term := make([]byte, 1001)
	for i := range term {
		term[i] = 'a'
	}
	if err := d.Add([]Entry{{Term: string(term), Enabled: true}}); err != ErrTermTooLong {
		t.Fatalf("expected ErrTermTooLong, got %v", err)
	}
}

func TestAddDuplicateTermConflict(t *testing.T) {
	d := newTestDictionary(t)
	if err := d.Add([]Entry{{Term: "Acme Corp", Enabled: true}}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	err := d.Add([]Entry{{Term: "acme corp", Enabled: true}})
	if _, ok := err.(*ErrDuplicateTerm); !ok {
		t.Fatalf("expected ErrDuplicateTerm, got %v", err)
	}
}

func TestLongestTermWinsOverShorterPrefix(t *testing.T) {
	d := newTestDictionary(t)
	if err := d.Add([]Entry{
		{Term: "New", Enabled: true},
		{Term: "New Zealand", Enabled: true},
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	tok := tokenizer.New("", "")
	_, tokens, detections := d.Redact(tok, "Moving to New Zealand soon")
	if len(detections) != 1 {
		t.Fatalf("expected 1 detection, got %d: %+v", len(detections), detections)
	}
	if detections[0].Value != "New Zealand" {
		t.Fatalf("expected match on 'New Zealand', got %q", detections[0].Value)
	}
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
}

func TestCaseInsensitiveWholeWordMatch(t *testing.T) {
	d := newTestDictionary(t)
	if err := d.Add([]Entry{{Term: "Acme Corp", Enabled: true}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	tok := tokenizer.New("", "")
	_, _, detections := d.Redact(tok, "I work at acme corp and love it")
	if len(detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(detections))
	}
	if detections[0].Value != "acme corp" {
		t.Fatalf("expected original-case value preserved, got %q", detections[0].Value)
	}
	if detections[0].Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", detections[0].Confidence)
	}
}

func TestRemoveByTerm(t *testing.T) {
	d := newTestDictionary(t)
	if err := d.Add([]Entry{{Term: "secret", Enabled: true}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !d.HasTerm("SECRET") {
		t.Fatal("expected HasTerm to be case-insensitive")
	}
	if err := d.RemoveByTerm([]string{"Secret"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if d.HasTerm("secret") {
		t.Fatal("expected term removed")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store1, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d1, err := New(store1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d1.Add([]Entry{{Term: "persisted-term", Enabled: true}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	store1.Close()

	store2, err := storage.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()
	d2, err := New(store2)
	if err != nil {
		t.Fatalf("new after reopen: %v", err)
	}
	if !d2.HasTerm("persisted-term") {
		t.Fatal("expected term to survive reopen")
	}
}

func TestScaleUnder100ms(t *testing.T) {
	d := newTestDictionary(t)
	entries := make([]Entry, 0, 10000)
	for i := 0; i < 10000; i++ {
		entries = append(entries, Entry{Term: randTerm(i), Enabled: true})
	}
	if err := d.Add(entries); err != nil {
		t.Fatalf("add: %v", err)
	}
	tok := tokenizer.New("", "")
	start := time.Now()
	d.Redact(tok, "This is a short piece of input text to scan.")
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("redact took %s, want < 100ms", elapsed)
	}
}

func randTerm(i int) string {
	buf := make([]byte, 0, 12)
	buf = append(buf, "term-"...)
	for i > 0 {
		buf = append(buf, byte('a'+i%26))
		i /= 26
	}
	if len(buf) == 5 {
		buf = append(buf, '0')
	}
	return string(buf)
}
