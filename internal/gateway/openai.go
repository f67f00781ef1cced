package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// #region openai-config
// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// DefaultOpenAIConfig returns defaults for api.openai.com.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   8192,
		Temperature: 0.1,
		Timeout:     2 * time.Minute,
	}
}

// #endregion openai-config

// #region openai-wire
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		CompletionTokensDetails struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// #endregion openai-wire

// #region openai-model
// OpenAIModel calls an OpenAI-compatible /chat/completions endpoint. Retries are left
// to the Gateway; each Generate is exactly one HTTP request.
type OpenAIModel struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIModel creates the client. Missing fields take DefaultOpenAIConfig values.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	def := DefaultOpenAIConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIModel{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Name returns "openai:<model>".
func (m *OpenAIModel) Name() string {
	return "openai:" + m.cfg.Model
}

// Generate sends one chat completion request.
func (m *OpenAIModel) Generate(ctx context.Context, prompt string) (Completion, error) {
	messages := make([]openAIMessage, 0, 2)
	if m.cfg.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: m.cfg.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(openAIRequest{
		Model:          m.cfg.Model,
		Messages:       messages,
		MaxTokens:      m.cfg.MaxTokens,
		Temperature:    m.cfg.Temperature,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Completion{}, fmt.Errorf("openai: status %d: %s", resp.StatusCode, truncate(string(data), 256))
	}

	var out openAIResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Completion{}, fmt.Errorf("openai: decode response: %w", err)
	}
	if out.Error != nil {
		return Completion{}, fmt.Errorf("openai: api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return Completion{}, fmt.Errorf("openai: no choices returned")
	}

	choice := out.Choices[0]
	return Completion{
		Text:          choice.Message.Content,
		FinishReason:  choice.FinishReason,
		Truncated:     choice.FinishReason == "length",
		ThoughtTokens: out.Usage.CompletionTokensDetails.ReasoningTokens,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// #endregion openai-model
