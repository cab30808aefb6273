// Package ollama is a thin HTTP client for a locally hosted Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"answerd/internal/config"
)

// ErrUnavailable reports that the generation backend could not be reached or
// produced no usable content.
var ErrUnavailable = errors.New("ollama unavailable")

// Client handles communication with Ollama.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a new Ollama client for the configured model.
func NewClient(cfg config.OllamaConfig, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log.Named("ollama"),
	}
}

// Model returns the model name this client generates with.
func (c *Client) Model() string { return c.model }

// Chat sends a non-streaming chat request and returns the complete response
// text. It fails with an ErrUnavailable-wrapped error when the server cannot
// be reached, rejects the request, or returns empty content.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	return c.chat(ctx, messages, "")
}

// ChatJSON is Chat with the response constrained to a single JSON object.
func (c *Client) ChatJSON(ctx context.Context, messages []Message) (string, error) {
	return c.chat(ctx, messages, "json")
}

func (c *Client) chat(ctx context.Context, messages []Message, format string) (string, error) {
	req := ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Format:   format,
	}

	start := time.Now()
	c.log.Debug("sending chat request",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.String("format", format))

	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(chatResp.Message.Content) == "" {
		return "", fmt.Errorf("%w: model returned no content", ErrUnavailable)
	}

	c.log.Debug("chat request complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_chars", len(chatResp.Message.Content)))
	return chatResp.Message.Content, nil
}

// ChatStream sends a streaming chat request, invoking onChunk for each piece
// of generated text, and returns the accumulated response.
func (c *Client) ChatStream(ctx context.Context, messages []Message, onChunk func(string)) (string, error) {
	req := ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}

	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	full, err := c.streamResponse(resp.Body, onChunk)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(full) == "" {
		return "", fmt.Errorf("%w: model returned no content", ErrUnavailable)
	}
	return full, nil
}

// streamResponse reads newline-delimited JSON chunks until done.
func (c *Client) streamResponse(body io.Reader, onChunk func(string)) (string, error) {
	scanner := bufio.NewScanner(body)
	var full strings.Builder

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk ChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Skip malformed lines.
			continue
		}

		if content := chunk.Message.Content; content != "" {
			full.WriteString(content)
			if onChunk != nil {
				onChunk(content)
			}
		}
		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream read failed: %w", err)
	}
	return full.String(), nil
}

// HealthCheck verifies that the server is accessible.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: unreachable at %s: %v (is Ollama running?)", ErrUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// ListModels returns the names of the models the server has available.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	models := make([]string, len(result.Models))
	for i, m := range result.Models {
		models[i] = m.Name
	}
	return models, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}
