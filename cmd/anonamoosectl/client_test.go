package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientDoSendsBearerTokenAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, token: "secret", http: srv.Client()}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.get("/anything", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected decoded ok=true")
	}
}

func TestClientDoReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, http: srv.Client()}
	if err := c.get("/missing", nil); err == nil {
		t.Fatalf("expected an error for a 404 response")
	}
}

func TestClientPostEncodesBody(t *testing.T) {
	var sawContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, http: srv.Client()}
	if err := c.post("/x", map[string]string{"a": "b"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawContentType != "application/json" {
		t.Fatalf("expected JSON content type, got %q", sawContentType)
	}
}
