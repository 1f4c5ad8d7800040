// Package ollama provides an adapter for the Ollama LLM service.
// It implements intent analysis by sending user messages to a local Ollama instance
// and parsing the structured JSON response into a domain.Intent.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/persona/internal/core/domain"
	"github.com/ewilliams-labs/persona/internal/core/ports"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "deepseek-r1:8b"
	defaultTimeout = 30 * time.Second
)

const systemPrompt = "You are the Persona Music Intent Engine. Translate a listener's request into a structured JSON search intent for a music catalog.\n\nRules:\nEntities: Extract specific artists and genres mentioned. Use the listener's spelling for artists.\nQuery: Put any remaining search words (titles, eras, instruments) in 'query'. Leave it empty when genres and mood say enough.\nMood: One or two words describing the feel, such as 'rainy', 'upbeat', 'melancholic'.\nOutput: Return ONLY a valid JSON object with the keys query, artists, genres, mood, explanation. No conversational text.\nExample: 'something like Bon Iver for a rainy afternoon' -> { \"query\": \"\", \"artists\": [\"Bon Iver\"], \"genres\": [\"indie folk\"], \"mood\": \"rainy\", \"explanation\": \"Quiet indie folk in the vein of Bon Iver.\" }"

// Options configures the client.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ ports.IntentCompiler = (*Client)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

func NewClient(opts Options, logger zerolog.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "ollama").Logger(),
	}
}

func (c *Client) AnalyzeIntent(ctx context.Context, message string) (domain.Intent, error) {
	if strings.TrimSpace(message) == "" {
		return domain.Intent{}, fmt.Errorf("ollama: empty message")
	}

	payload := chatRequest{
		Model:  c.model,
		Stream: false,
		Format: "json",
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: message},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return domain.Intent{}, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Intent{}, fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Intent{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	if parsed.Error != "" {
		return domain.Intent{}, fmt.Errorf("ollama: %s", parsed.Error)
	}

	content := stripThinking(parsed.Message.Content)
	if content == "" {
		return domain.Intent{}, fmt.Errorf("ollama: empty response")
	}

	var intent domain.Intent
	if err := json.Unmarshal([]byte(content), &intent); err != nil {
		return domain.Intent{}, fmt.Errorf("ollama: decode intent: %w", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Str("query", intent.SearchQuery()).
		Str("artist", intent.SeedArtist()).
		Msg("analyzed intent")
	return intent, nil
}

// stripThinking drops a leading <think>...</think> block that reasoning
// models emit before the JSON body.
func stripThinking(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "<think>") {
		if end := strings.Index(content, "</think>"); end >= 0 {
			content = content[end+len("</think>"):]
		}
	}
	return strings.TrimSpace(content)
}
