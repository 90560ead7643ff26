// Package llm provides the text-generation backends and the ordered
// fallback gateway that turns questions into SQL and results into answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrorKind classifies backend failures into a uniform surface so the
// gateway can treat every adapter the same way.
type ErrorKind string

const (
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindConnection  ErrorKind = "connection"
	ErrKindBadResponse ErrorKind = "bad_response"
)

// BackendError wraps an adapter failure with its classification.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s (%s): %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Backend is one text-generation adapter.
type Backend interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
}

// Config describes one OpenAI-protocol backend. The same adapter covers a
// local Ollama endpoint and cloud APIs; only the base URL differs.
type Config struct {
	Provider string // ollama, openai, or any OpenAI-compatible provider
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  int // seconds, per completion call
}

type openAIBackend struct {
	client  *openai.Client
	name    string
	model   string
	timeout time.Duration
}

// NewBackend creates an OpenAI-protocol backend adapter.
func NewBackend(cfg *Config) (Backend, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm: model required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		clientConfig.BaseURL = baseURL
	case "openai":
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	default:
		slog.Info("llm: using generic OpenAI-compatible provider", "provider", cfg.Provider)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}

	return &openAIBackend{
		client:  openai.NewClientWithConfig(clientConfig),
		name:    cfg.Provider + "/" + cfg.Model,
		model:   cfg.Model,
		timeout: time.Duration(timeout) * time.Second,
	}, nil
}

func (b *openAIBackend) Name() string {
	return b.name
}

func (b *openAIBackend) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &BackendError{Backend: b.name, Kind: classify(err), Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &BackendError{Backend: b.name, Kind: ErrKindBadResponse, Err: errors.New("empty completion")}
	}

	slog.Debug("llm: completion received",
		"backend", b.name,
		"content_length", len(resp.Choices[0].Message.Content),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrKindTimeout
		}
		return ErrKindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrKindConnection
	}
	return ErrKindBadResponse
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
