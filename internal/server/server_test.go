package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"anonamoose/internal/dictionary"
	"anonamoose/internal/logger"
	"anonamoose/internal/metrics"
	"anonamoose/internal/observability"
	"anonamoose/internal/redact"
	"anonamoose/internal/rehydrate"
	"anonamoose/internal/settings"
	"anonamoose/internal/storage"
)

func newTestServer(t *testing.T, upstream *httptest.Server) (*Server, func()) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	dict, err := dictionary.New(store)
	if err != nil {
		t.Fatalf("dictionary.New: %v", err)
	}
	settingsStore, err := settings.New(store)
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	rehydrateStore := rehydrate.New(store)
	rings := observability.New()
	pipeline := redact.New(dict, nil)
	log := logger.New("TEST", "error")

	opts := DefaultOptions()
	opts.APIToken = "test-token"
	opts.StatsToken = "stats-token"
	if upstream != nil {
		opts.OpenAIBaseURL = upstream.URL
		opts.AnthropicBaseURL = upstream.URL
	}

	srv := New(opts, log, metrics.New(), dict, settingsStore, rehydrateStore, nil, pipeline, rings)
	cleanup := func() {
		srv.Close()
		rehydrateStore.Close()
		store.Close()
	}
	return srv, cleanup
}

func TestHealthEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %+v", body)
	}
}

func TestManagementRequiresToken(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dictionary", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestDictionaryCreateAndDuplicate(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	body := strings.NewReader(`{"term":"Acme Corp","replacement":"ORG"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dictionary", body)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	body2 := strings.NewReader(`{"term":"acme corp","replacement":"OTHER"}`)
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/dictionary", body2)
	req2.Header.Set("Authorization", "Bearer test-token")
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate term, got %d: %s", rec2.Code, rec2.Body.String())
	}
}

func TestDirectRedactEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	body := strings.NewReader(`{"text":"Email me at jane@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/redact", body)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		RedactedText string `json:"redactedText"`
		SessionID    string `json:"sessionId"`
		Detections   []any  `json:"detections"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if strings.Contains(resp.RedactedText, "jane@example.com") {
		t.Fatalf("expected email to be redacted, got %q", resp.RedactedText)
	}
	if len(resp.Detections) == 0 {
		t.Fatal("expected at least one detection")
	}
}

func TestAdminVerifyConstantTime(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	good := strings.NewReader(`{"token":"test-token"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/verify", good)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var resp map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp["valid"] {
		t.Fatal("expected valid=true for correct token")
	}

	bad := strings.NewReader(`{"token":"wrong"}`)
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/admin/verify", bad)
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	var resp2 map[string]bool
	json.Unmarshal(rec2.Body.Bytes(), &resp2)
	if resp2["valid"] {
		t.Fatal("expected valid=false for wrong token")
	}
}

func TestChatCompletionsRedactsAndForwards(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		messages, _ := body["messages"].([]any)
		msg0, _ := messages[0].(map[string]any)
		content, _ := msg0["content"].(string)
		if strings.Contains(content, "jane@example.com") {
			t.Errorf("expected upstream to see redacted content, got %q", content)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": content}},
			},
		})
	}))
	defer upstream.Close()

	srv, cleanup := newTestServer(t, upstream)
	defer cleanup()

	reqBody := strings.NewReader(`{"messages":[{"role":"user","content":"Email jane@example.com"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", reqBody)
	req.Header.Set("Authorization", "Bearer upstream-key")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "jane@example.com") {
		t.Fatalf("expected hydrated response to restore original email, got %s", rec.Body.String())
	}
}

func TestChatCompletionsInjectsPIIInstructionWhenTokensMinted(t *testing.T) {
	var sawSystemMessage bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		messages, _ := body["messages"].([]any)
		if len(messages) > 0 {
			msg0, _ := messages[0].(map[string]any)
			if role, _ := msg0["role"].(string); role == "system" {
				if content, _ := msg0["content"].(string); strings.Contains(content, "PRIVACY TOKENS") {
					sawSystemMessage = true
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer upstream.Close()

	srv, cleanup := newTestServer(t, upstream)
	defer cleanup()

	reqBody := strings.NewReader(`{"model":"gpt-4","messages":[{"role":"user","content":"Email jane@example.com"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", reqBody)
	req.Header.Set("Authorization", "Bearer upstream-key")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !sawSystemMessage {
		t.Fatalf("expected upstream request to carry an injected PII system instruction")
	}
}

func TestChatCompletionsMissingAuthRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	reqBody := strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", reqBody)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without Authorization, got %d", rec.Code)
	}
}
