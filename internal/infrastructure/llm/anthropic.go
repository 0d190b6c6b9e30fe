package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SignalScanner/internal/config"
	"SignalScanner/internal/ports"
)

// AnthropicClient implements ports.Completer against the Anthropic messages API.
type AnthropicClient struct {
	endpoint  string
	model     string
	apiKey    string
	maxTokens int
	http      *http.Client
}

var _ ports.Completer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.AnthropicConfig) *AnthropicClient {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		maxTokens: maxTokens,
		http:      &http.Client{Timeout: 120 * time.Second},
	}
}

// Model reports the configured model identifier, recorded on classifications.
func (c *AnthropicClient) Model() string {
	return c.model
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete sends one user prompt and returns the raw reply text. Provider
// failures surface as the closed error set declared in ports: refusals as
// *ports.RefusalError, credential problems as *ports.AuthError and anything
// else as *ports.TransportError.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", &ports.AuthError{Status: http.StatusUnauthorized}
	}

	body, err := json.Marshal(apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ports.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ports.TransportError{Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &ports.AuthError{Status: resp.StatusCode}
	}

	var decoded apiResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &ports.TransportError{Cause: fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(payload)))}
		}
		return "", &ports.TransportError{Cause: fmt.Errorf("decode response: %w", err)}
	}

	if decoded.Error != nil {
		return "", classifyAPIError(resp.StatusCode, decoded.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ports.TransportError{Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if decoded.StopReason == "refusal" {
		return "", &ports.RefusalError{Reason: "model declined to answer"}
	}
	if len(decoded.Content) == 0 || decoded.Content[0].Text == "" {
		return "", &ports.TransportError{Cause: fmt.Errorf("empty response")}
	}

	return decoded.Content[0].Text, nil
}

// classifyAPIError maps the provider's error envelope onto the typed set.
// Policy declines share the invalid_request_error type with plain request
// mistakes (bad model name, oversized max_tokens), so only messages that
// read like a content decline become refusals. Everything else stays a
// transport error and fails the run instead of degrading per post.
func classifyAPIError(status int, apiErr *apiError) error {
	switch apiErr.Type {
	case "authentication_error", "permission_error":
		return &ports.AuthError{Status: status}
	case "invalid_request_error":
		if isContentDecline(apiErr.Message) {
			return &ports.RefusalError{Reason: apiErr.Message}
		}
		return &ports.TransportError{Cause: fmt.Errorf("api error %s: %s", apiErr.Type, apiErr.Message)}
	default:
		return &ports.TransportError{Cause: fmt.Errorf("api error %s: %s", apiErr.Type, apiErr.Message)}
	}
}

var declinePhrases = []string{
	"content blocked",
	"blocked by",
	"content policy",
	"usage policy",
	"usage policies",
	"safety",
	"flagged",
	"declined to process",
}

func isContentDecline(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range declinePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
