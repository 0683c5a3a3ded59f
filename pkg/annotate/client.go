package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	BaseURLDefault = "https://api.groq.com"
	ModelDefault   = "llama-3.3-70b-versatile"
	TimeoutDefault = 30 * time.Second

	chatCompletionsPath = "/openai/v1/chat/completions"

	// A risk score is a single digit or two; anything longer is noise.
	maxCompletionTokens = 5
)

// HTTPError is a non-2xx reply from the completion service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("completion service returned %d: %s", e.StatusCode, e.Body)
}

// ClientConfig configures the chat-completions client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("API key required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = BaseURLDefault
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = ModelDefault
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = TimeoutDefault
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{
		TokenType:   "Bearer",
		AccessToken: cfg.APIKey,
	})

	return &Client{
		baseURL:    baseURL,
		model:      model,
		timeout:    timeout,
		httpClient: oauth2.NewClient(ctx, ts),
	}, nil
}

// NewClientWithHTTPClient is intended for tests; it avoids network access
// by using a caller-provided HTTP client.
func NewClientWithHTTPClient(ctx context.Context, cfg ClientConfig, httpClient *http.Client) (*Client, error) {
	c, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
	} `json:"choices"`
}

// Complete sends a single-user-message prompt and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatCompletionRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxCompletionTokens,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, c.baseURL+chatCompletionsPath, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}

	for _, choice := range out.Choices {
		if strings.TrimSpace(choice.Message.Content) != "" {
			return choice.Message.Content, nil
		}
	}

	return "", errors.New("empty completion")
}
