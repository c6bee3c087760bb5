// Package clients holds the HTTP collaborators the pipeline depends on:
// the LLM completion endpoint, the Graph-API-shaped social platform, and
// the payment gateway. All of them are called behind circuit breakers and
// the retry service; the clients themselves stay thin.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aagii9912/smarthub-sub002/internal/config"
)

// maxErrorBodyBytes caps how much of an upstream error body ends up in an
// error message.
const maxErrorBodyBytes = 2048

// ChatMessage is one turn of conversation context for the LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the LLM call input.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
	Model        string
	MaxTokens    int
}

// LLMClient calls the configured completion endpoint. The provider is
// interchangeable; only the wire shape below is assumed.
type LLMClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewLLMClient(cfg config.LLMConfig) *LLMClient {
	return &LLMClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type completionWire struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// Complete sends the conversation to the LLM and returns the generated
// reply text. Overload responses surface their status code in the error so
// the retry layer can recognize them as transient.
func (c *LLMClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(completionWire{
		Model:     model,
		System:    req.SystemPrompt,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling llm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", upstreamError("llm", resp)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding llm response: %w", err)
	}
	return out.Content, nil
}

// upstreamError reads a capped slice of the error body into the message.
// The status code stays in the string so substring-based retry
// classification can see it.
func upstreamError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return fmt.Errorf("%s returned %d: %s", service, resp.StatusCode, bytes.TrimSpace(body))
}
