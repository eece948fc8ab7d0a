package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPostSendsContent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhook(srv.URL, nil, time.Second)
	if err := sink.Post(context.Background(), "communications", "task ab12 processed"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got["content"] != "[communications] task ab12 processed" {
		t.Errorf("content = %q", got["content"])
	}
}

func TestPostPrefersRoleURL(t *testing.T) {
	var hits int
	roleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer roleSrv.Close()

	sink := NewWebhook("http://127.0.0.1:1", map[string]string{"release_qa": roleSrv.URL}, time.Second)
	if err := sink.Post(context.Background(), "release_qa", "done"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if hits != 1 {
		t.Errorf("role webhook hits = %d, want 1", hits)
	}
}

func TestPostUnconfiguredIsNoop(t *testing.T) {
	sink := NewWebhook("", nil, time.Second)
	if err := sink.Post(context.Background(), "communications", "ignored"); err != nil {
		t.Errorf("unconfigured Post should be a no-op, got %v", err)
	}
}

func TestPostReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	sink := NewWebhook(srv.URL, nil, time.Second)
	if err := sink.Post(context.Background(), "communications", "x"); err == nil {
		t.Error("HTTP failure should surface as an error for the caller to log")
	}
}
