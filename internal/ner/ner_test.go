package ner

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestMergeBIOBasic(t *testing.T) {
	tokens := []rawToken{
		{Word: "John", Label: "B-PER", Score: 0.9},
		{Word: "Smith", Label: "I-PER", Score: 0.8},
		{Word: "works", Label: "O", Score: 0.99},
		{Word: "at", Label: "O", Score: 0.99},
		{Word: "Acme", Label: "B-ORG", Score: 0.95},
	}
	entities := mergeBIO(tokens)
	if len(entities) != 2 {
		t.Fatalf("expected 2 merged entities, got %d: %+v", len(entities), entities)
	}
	if entities[0].Value != "John Smith" || entities[0].Category != "PERSON" {
		t.Fatalf("unexpected first entity: %+v", entities[0])
	}
	if math.Abs(entities[0].Score-0.85) > 1e-9 {
		t.Fatalf("expected running mean 0.85, got %v", entities[0].Score)
	}
}

func TestMergeBIOSubwordJoin(t *testing.T) {
	tokens := []rawToken{
		{Word: "Wash", Label: "B-LOC", Score: 0.9},
		{Word: "##ington", Label: "I-LOC", Score: 0.9},
	}
	entities := mergeBIO(tokens)
	if len(entities) != 1 || entities[0].Value != "Washington" {
		t.Fatalf("expected subword join to 'Washington', got %+v", entities)
	}
}

func TestMergeBIOOrphanDiscarded(t *testing.T) {
	tokens := []rawToken{
		{Word: "Smith", Label: "I-PER", Score: 0.9},
	}
	if entities := mergeBIO(tokens); len(entities) != 0 {
		t.Fatalf("expected orphan I- tag discarded, got %+v", entities)
	}
}

func TestFilterEntitiesConfidenceAndCategory(t *testing.T) {
	entities := []Entity{
		{Value: "Bob", Category: "PERSON", Score: 0.5},
		{Value: "Acme", Category: "ORG", Score: 0.9},
	}
	out := filterEntities(entities, 0.6, map[string]bool{"PERSON": true, "ORG": true})
	if len(out) != 1 || out[0].Value != "Acme" {
		t.Fatalf("expected only Acme to survive confidence filter, got %+v", out)
	}
}

func TestChunkTextOverlap(t *testing.T) {
	text := make([]byte, 2500)
	for i := range text {
		text[i] = 'a'
	}
	chunks := chunkText(string(text))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len([]rune(c)) > chunkSize {
			t.Fatalf("chunk exceeds chunkSize: %d", len([]rune(c)))
		}
	}
}

func TestLocateResolvesOverlapsLongestLeftmost(t *testing.T) {
	text := "John Smith met John"
	entities := []Entity{
		{Value: "John", Category: "PERSON", Score: 0.7},
		{Value: "John Smith", Category: "PERSON", Score: 0.9},
	}
	dets := Locate(text, entities)
	if len(dets) != 2 {
		t.Fatalf("expected 2 non-overlapping detections, got %+v", dets)
	}
	if dets[0].Value != "John Smith" {
		t.Fatalf("expected longest span to win at position 0, got %q", dets[0].Value)
	}
}

func TestCircuitBreakerOpensOnFailureAndRecovers(t *testing.T) {
	c := New("http://127.0.0.1:0", "test-model")
	calls := 0
	c.httpClient = func(ctx context.Context, endpoint, model, chunk string) ([]rawToken, error) {
		calls++
		return nil, context.DeadlineExceeded
	}
	ctx := context.Background()
	entities, err := c.Classify(ctx, "some text with John Smith in it", 0.6, nil)
	if err != nil {
		t.Fatalf("expected soft-fail, got error %v", err)
	}
	if entities != nil {
		t.Fatalf("expected nil entities on failure, got %+v", entities)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before opening, got %d", calls)
	}

	// Circuit is open; a second call within the cooldown must not re-dial.
	if _, err := c.Classify(ctx, "more text", 0.6, nil); err != nil {
		t.Fatalf("expected soft-fail while open, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no additional dial while circuit open, got %d calls", calls)
	}

	// Force the cooldown to have elapsed and confirm a retry is attempted.
	c.mu.Lock()
	c.openedAt = time.Now().Add(-2 * cooldown)
	c.mu.Unlock()
	c.httpClient = func(ctx context.Context, endpoint, model, chunk string) ([]rawToken, error) {
		calls++
		return []rawToken{{Word: "ok", Label: "O", Score: 1.0}}, nil
	}
	if _, err := c.Classify(ctx, "recovered text", 0.6, nil); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected retry attempt after cooldown, got %d calls", calls)
	}
}

func TestSetModelResetsState(t *testing.T) {
	c := New("http://example.invalid", "model-a")
	c.markReady()
	c.SetModel("model-b")
	c.mu.Lock()
	st := c.st
	c.mu.Unlock()
	if st != stateUninitialized {
		t.Fatalf("expected state reset to uninitialized after model change, got %v", st)
	}
}
