package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
	"pdfchat/internal/provider"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
)

// Client calls an OpenAI-compatible chat completions endpoint at temperature 0.
type Client struct {
	connector *provider.Connector
	model     string
	hasKey    bool
	keyEnv    string
}

type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	key := os.Getenv(cfg.APIKeyEnv)
	return &Client{
		connector: provider.NewConnector(cfg.BaseURL,
			provider.WithRequestTimeout(cfg.Timeout),
			provider.WithAuthToken(key),
			provider.WithRequestLogging(),
		),
		model:  cfg.Model,
		hasKey: key != "",
		keyEnv: cfg.APIKeyEnv,
	}
}

func (c *Client) Name() string { return "openai:" + c.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// buildMessages renders prior turns as alternating user/assistant messages
// followed by prompt as the final user message.
func buildMessages(prompt string, history []domain.Turn) []message {
	msgs := make([]message, 0, 2*len(history)+1)
	for _, turn := range history {
		msgs = append(msgs,
			message{Role: "user", Content: turn.Question},
			message{Role: "assistant", Content: turn.Answer},
		)
	}
	return append(msgs, message{Role: "user", Content: prompt})
}

// Complete returns the first choice's content. No retries are attempted.
func (c *Client) Complete(ctx context.Context, prompt string, history []domain.Turn) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    buildMessages(prompt, history),
		Temperature: 0,
	}

	var resp chatResponse
	if err := c.connector.DoRequest(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		var httpErr *provider.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized && !c.hasKey {
			return "", fmt.Errorf("chat completion: %w (is %s set?)", err, c.keyEnv)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}

	ctxzap.Debug(ctx, "chat completion received",
		zap.String("model", c.model),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
