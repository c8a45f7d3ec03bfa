package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"pdfchat/internal/provider"
)

func TestEmbed_ordersByIndex(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "k1")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k1" {
			t.Errorf("Authorization = %q", got)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "m" || len(req.Input) != 3 {
			t.Errorf("request = %+v", req)
		}
		// answer out of order
		_, _ = w.Write([]byte(`{"data":[
			{"index":2,"embedding":[2,2]},
			{"index":0,"embedding":[0,0]},
			{"index":1,"embedding":[1,1]}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_EMBED_KEY", Model: "m"})
	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, v := range vecs {
		if v[0] != float64(i) {
			t.Errorf("vector %d = %v", i, v)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single request, got %d", calls.Load())
	}
}

func TestEmbed_countMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for missing vector")
	}
}

func TestEmbed_noRetryOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Embed(context.Background(), []string{"a"})
	var httpErr *provider.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Message != "overloaded" {
		t.Fatalf("got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one attempt, got %d", calls.Load())
	}
}

func TestEmbed_missingKeyHint(t *testing.T) {
	t.Setenv("TEST_EMPTY_KEY", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("no Authorization header expected without a key")
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"You didn't provide an API key."}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_EMPTY_KEY"})
	_, err := c.Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "TEST_EMPTY_KEY") {
		t.Fatalf("expected hint naming the key variable, got %v", err)
	}
}

func TestEmbed_emptyInput(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("got %v, %v", vecs, err)
	}
}
