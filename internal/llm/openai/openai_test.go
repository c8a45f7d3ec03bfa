package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"pdfchat/internal/domain"
	"pdfchat/internal/provider"
)

func TestComplete_sendsHistoryAtZeroTemperature(t *testing.T) {
	t.Setenv("TEST_CHAT_KEY", "k")
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		raw, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Paris.  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_CHAT_KEY"})
	history := []domain.Turn{{Question: "q1", Answer: "a1"}}
	got, err := c.Complete(context.Background(), "prompt", history)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Paris." {
		t.Errorf("answer = %q", got)
	}

	if !bytes.Contains(raw, []byte(`"temperature":0`)) {
		t.Errorf("temperature must be sent explicitly: %s", raw)
	}
	var req chatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatal(err)
	}
	if req.Model != DefaultModel {
		t.Errorf("model = %s", req.Model)
	}
	want := []message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "prompt"},
	}
	if len(req.Messages) != len(want) {
		t.Fatalf("messages = %+v", req.Messages)
	}
	for i := range want {
		if req.Messages[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, req.Messages[i], want[i])
		}
	}
}

func TestComplete_providerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Complete(context.Background(), "p", nil)
	var httpErr *provider.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Message != "Rate limit reached" {
		t.Fatalf("got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestComplete_noChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := NewClient(Config{BaseURL: srv.URL}).Complete(context.Background(), "p", nil); err == nil {
		t.Fatal("expected error")
	}
}
