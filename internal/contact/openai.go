package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	ErrAuth        = errors.New("llm authentication failed")
	ErrRateLimited = errors.New("llm rate limited")
	ErrNoChoices   = errors.New("llm returned no choices")
)

// APIError is a non-200 answer from the completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIClient infers contact details through an OpenAI-compatible chat
// completion endpoint.
type OpenAIClient struct {
	httpClient *http.Client
	cfg        OpenAIConfig
	logger     *slog.Logger
}

// NewOpenAIClient creates a client. Pass nil to use a client with
// cfg.Timeout.
func NewOpenAIClient(httpClient *http.Client, cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.With("component", "openai"),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = `You extract seller contact details from a marketplace seller profile.
Return ONLY a JSON object {"email": "...", "url": "..."}.
Use an empty string for anything that is not written in the text. Never guess.`

func (c *OpenAIClient) Infer(ctx context.Context, text string) (Contact, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return Contact{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Contact{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Contact{}, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Contact{}, fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Contact{}, classifyError(resp.StatusCode, respBody)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return Contact{}, fmt.Errorf("parse llm response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return Contact{}, ErrNoChoices
	}

	c.logger.Debug("contact inference done", "tokens", chat.Usage.TotalTokens)
	return parseAnswer(chat.Choices[0].Message.Content), nil
}

// parseAnswer reads the model's JSON answer. Values are re-checked against
// the patterns so hallucinated free text never lands in a record; a non-JSON
// answer is scanned as plain text.
func parseAnswer(raw string) Contact {
	var answer Contact
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return FromText(raw)
	}
	return Contact{
		Email: EmailFrom(answer.Email),
		URL:   URLFrom(answer.URL),
	}
}

func classifyError(statusCode int, body []byte) error {
	var errResp chatErrorResponse
	msg := http.StatusText(statusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return &APIError{StatusCode: statusCode, Message: msg}
}
