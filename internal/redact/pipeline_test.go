package redact

import (
	"context"
	"path/filepath"
	"testing"

	"anonamoose/internal/dictionary"
	"anonamoose/internal/patterns"
	"anonamoose/internal/storage"
)

func newTestPipeline(t *testing.T) (*Pipeline, *dictionary.Dictionary) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	dict, err := dictionary.New(store)
	if err != nil {
		t.Fatalf("dictionary.New: %v", err)
	}
	return New(dict, nil), dict
}

func baseConfig() Config {
	return Config{
		EnableDictionary:     true,
		EnableNER:            true,
		EnableRegex:          true,
		EnableNames:          true,
		NERMinConfidence:     0.6,
		Locale:               patterns.LocaleUS,
		TokenizePlaceholders: true,
	}
}

func TestRegexLayerReplacesEmail(t *testing.T) {
	p, _ := newTestPipeline(t)
	res := p.Redact(context.Background(), "Contact me at jane@example.com please.", "s1", baseConfig())
	if len(res.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d: %+v", len(res.Tokens), res.Tokens)
	}
	if res.Tokens[0].Original != "jane@example.com" {
		t.Fatalf("unexpected original: %q", res.Tokens[0].Original)
	}
	if res.Detections[0].Layer != "Regex" {
		t.Fatalf("expected Regex layer, got %s", res.Detections[0].Layer)
	}
}

func TestLuhnInvalidCardNotDetected(t *testing.T) {
	p, _ := newTestPipeline(t)
	res := p.Redact(context.Background(), "Card: 4111 1111 1111 1112", "s1", baseConfig())
	for _, d := range res.Detections {
		if d.Category == "CREDIT_CARD" {
			t.Fatalf("expected Luhn-invalid card to be rejected, got %+v", d)
		}
	}
}

func TestLuhnValidCardDetected(t *testing.T) {
	p, _ := newTestPipeline(t)
	res := p.Redact(context.Background(), "Card: 4111111111111111", "s1", baseConfig())
	found := false
	for _, d := range res.Detections {
		if d.Category == "CREDIT_CARD" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected Luhn-valid card to be detected")
	}
}

func TestDictionaryLongestTermWins(t *testing.T) {
	p, dict := newTestPipeline(t)
	if err := dict.Add([]dictionary.Entry{
		{Term: "New", Replacement: "ORG", Enabled: true},
		{Term: "New Zealand", Replacement: "COUNTRY", Enabled: true},
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res := p.Redact(context.Background(), "We visited New Zealand last year.", "s1", baseConfig())
	for _, tok := range res.Tokens {
		if tok.Original == "New" {
			t.Fatalf("expected longest dictionary match to win, got bare 'New' token")
		}
	}
	found := false
	for _, tok := range res.Tokens {
		if tok.Original == "New Zealand" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected 'New Zealand' to be tokenized as one unit")
	}
}

func TestAnalysisOnlyModeLeavesTextUnchanged(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := baseConfig()
	cfg.TokenizePlaceholders = false
	original := "Email jane@example.com now."
	res := p.Redact(context.Background(), original, "s1", cfg)
	if res.RedactedText != original {
		t.Fatalf("expected unchanged text in analysis-only mode, got %q", res.RedactedText)
	}
	if res.Tokens != nil {
		t.Fatalf("expected no tokens in analysis-only mode, got %+v", res.Tokens)
	}
	if len(res.Detections) == 0 {
		t.Fatal("expected detections to still be reported in analysis-only mode")
	}
}

func TestDisabledLayerSkipsDetection(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := baseConfig()
	cfg.EnableRegex = false
	res := p.Redact(context.Background(), "jane@example.com", "s1", cfg)
	for _, d := range res.Detections {
		if d.Layer == "Regex" {
			t.Fatal("expected regex layer to be skipped when disabled")
		}
	}
}

func TestPlaceholderIsInertToLaterLayers(t *testing.T) {
	p, _ := newTestPipeline(t)
	res := p.Redact(context.Background(), "jane@example.com", "s1", baseConfig())
	// The minted placeholder should not itself be re-matched by a later
	// regex/name pass producing a second, nested token.
	if len(res.Tokens) != 1 {
		t.Fatalf("expected exactly 1 token, got %d: %+v", len(res.Tokens), res.Tokens)
	}
}
