package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"anonamoose/internal/config"
	"anonamoose/internal/settings"
	"anonamoose/internal/storage"
)

func TestPrintBanner_ContainsExpectedFields(t *testing.T) {
	cfg := config.Config{
		Port:             8787,
		BindAddress:      "0.0.0.0",
		DBPath:           "./data/anonamoose.db",
		NEREndpoint:      "http://localhost:8008",
		OpenAIBaseURL:    "https://api.openai.com",
		AnthropicBaseURL: "https://api.anthropic.com",
		LogLevel:         "info",
	}

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	printBanner(cfg)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	out := buf.String()

	for _, want := range []string{"8787", "./data/anonamoose.db", "localhost:8008", "api.openai.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in banner output, got:\n%s", want, out)
		}
	}
}

func TestPrintBanner_ZeroValueDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("printBanner panicked: %v", r)
		}
	}()
	old := os.Stdout
	_, w, _ := os.Pipe()
	os.Stdout = w
	printBanner(config.Config{})
	w.Close()
	os.Stdout = old
}

func TestSettingsSnapshotNERModel_ReturnsSeededDefault(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	settingsStore, err := settings.New(store)
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}

	if got := settingsSnapshotNERModel(settingsStore); got == "" {
		t.Error("expected a non-empty default NER model name")
	}
}
