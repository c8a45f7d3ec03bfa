// Package llm holds completer implementations that need no network.
package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
)

// MockCompleter answers every prompt with a canned reply and counts calls.
type MockCompleter struct {
	calls atomic.Int64

	mu      sync.Mutex
	reply   func(prompt string, history []domain.Turn) (string, error)
	delay   time.Duration
	prompts []string
}

func NewMockCompleter() *MockCompleter {
	return &MockCompleter{
		reply: func(prompt string, history []domain.Turn) (string, error) {
			return fmt.Sprintf("mock answer (%d prior turns)", len(history)), nil
		},
	}
}

func (m *MockCompleter) Name() string { return "mock" }

// ReplyWith replaces the reply function.
func (m *MockCompleter) ReplyWith(fn func(prompt string, history []domain.Turn) (string, error)) {
	m.mu.Lock()
	m.reply = fn
	m.mu.Unlock()
}

// Delay makes every call wait d or until its context is done.
func (m *MockCompleter) Delay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

func (m *MockCompleter) Calls() int64 { return m.calls.Load() }

// Prompts returns a copy of the prompts received so far.
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string, history []domain.Turn) (string, error) {
	m.calls.Add(1)
	ctxzap.Info(ctx, "[MOCK] completing prompt", zap.Int("history", len(history)))

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	reply, delay := m.reply, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply(prompt, history)
}
