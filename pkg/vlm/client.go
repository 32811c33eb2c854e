// Package vlm provides the client for the vision-language inference
// endpoint. It speaks the OpenAI-compatible chat completions protocol over
// raw HTTP, which keeps compatibility with local model servers (Ollama,
// llama.cpp, vLLM) that diverge from the official SDK in small ways, and
// uses the SDK types to decode responses.
package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/openai/openai-go"
)

const (
	// DefaultBaseURL is the default API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the default vision model.
	DefaultModel = "gpt-4o-mini"
)

// Client talks to an OpenAI-compatible vision model endpoint. The server
// side owns the long-lived model state (keep-alive inference session); the
// client holds nothing but connection configuration.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the vision model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible server, e.g. a
// local Ollama instance at http://localhost:11434/v1.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a vision model client. An empty apiKey falls back to
// the OPENAI_API_KEY environment variable; local servers accept any value.
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	c := &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == DefaultBaseURL {
		if env := os.Getenv("OPENAI_BASE_URL"); env != "" {
			c.baseURL = env
		}
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Ask sends a prompt plus one PNG image to the model and returns the
// message content. The request demands a JSON object response; parsing the
// content is the caller's concern. Timeouts arrive via ctx.
func (c *Client) Ask(ctx context.Context, prompt string, imagePNG []byte) (string, error) {
	content := []interface{}{
		map[string]interface{}{
			"type": "text",
			"text": prompt,
		},
	}
	if len(imagePNG) > 0 {
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(imagePNG)
		content = append(content, map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]interface{}{"url": dataURL},
		})
	}

	reqBody := map[string]interface{}{
		"model": c.model,
		"messages": []interface{}{
			map[string]interface{}{
				"role":    "user",
				"content": content,
			},
		},
		"response_format": map[string]interface{}{"type": "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision request failed with status %d: %s", resp.StatusCode, string(respBytes))
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(respBytes, &completion); err != nil {
		return "", fmt.Errorf("decoding vision response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("vision response contained no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
