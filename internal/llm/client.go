// Package llm wraps the language models that write multiple-choice questions
// and grade free-text answers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Client sends one system+user prompt pair and returns the raw reply, which
// is expected to contain a JSON object.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *OllamaClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	jsonBody, err := json.Marshal(generateRequest{
		Model:  c.model,
		System: system,
		Prompt: prompt,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return genResp.Response, nil
}

var (
	codeFenceOpen  = regexp.MustCompile("(?s)```(?:json)?\\s*")
	codeFenceClose = regexp.MustCompile("(?s)```\\s*$")
)

// ExtractJSON extracts the JSON object from a reply that may contain extra
// text or markdown fences.
func ExtractJSON(response string) (string, error) {
	response = strings.TrimSpace(response)
	response = codeFenceOpen.ReplaceAllString(response, "")
	response = codeFenceClose.ReplaceAllString(response, "")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no valid JSON object found in response")
	}

	jsonStr := response[start : end+1]
	var js json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &js); err != nil {
		return "", fmt.Errorf("extracted text is not valid JSON: %w", err)
	}
	return jsonStr, nil
}

// decode extracts the JSON object from reply into v.
func decode(reply string, v interface{}) error {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

// Options selects and configures a backend.
type Options struct {
	Provider      string // "openai" or "ollama"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	OllamaURL     string
	OllamaModel   string
}

// New returns the client for opts.Provider.
func New(opts Options) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case "", "openai":
		if opts.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider needs an API key")
		}
		return NewOpenAIClient(opts.OpenAIKey, opts.OpenAIBaseURL, opts.OpenAIModel), nil
	case "ollama":
		return NewOllamaClient(opts.OllamaURL, opts.OllamaModel), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
}
