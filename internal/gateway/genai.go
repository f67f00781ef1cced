package gateway

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// contentGenerator is the slice of the genai client the model uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// #region genai-config
// GenAIConfig configures the Gemini-backed model.
type GenAIConfig struct {
	APIKey          string
	Model           string
	SystemPrompt    string
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultGenAIModel is used when GenAIConfig.Model is empty.
const DefaultGenAIModel = "gemini-2.5-flash"

// #endregion genai-config

// #region genai-model
// GenAIModel calls the Gemini API through google.golang.org/genai.
type GenAIModel struct {
	models contentGenerator
	cfg    GenAIConfig
}

// NewGenAIModel creates a Gemini client.
func NewGenAIModel(ctx context.Context, cfg GenAIConfig) (*GenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return newGenAIModel(client.Models, cfg), nil
}

func newGenAIModel(models contentGenerator, cfg GenAIConfig) *GenAIModel {
	if cfg.Model == "" {
		cfg.Model = DefaultGenAIModel
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 8192
	}
	return &GenAIModel{models: models, cfg: cfg}
}

// Name returns "genai:<model>".
func (m *GenAIModel) Name() string {
	return "genai:" + m.cfg.Model
}

// Generate sends prompt as a single user turn. Thought parts are counted, not returned.
func (m *GenAIModel) Generate(ctx context.Context, prompt string) (Completion, error) {
	temperature := m.cfg.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  m.cfg.MaxOutputTokens,
		ResponseMIMEType: "application/json",
	}
	if m.cfg.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(m.cfg.SystemPrompt, genai.RoleUser)
	}

	resp, err := m.models.GenerateContent(ctx, m.cfg.Model, genai.Text(prompt), config)
	if err != nil {
		return Completion{}, fmt.Errorf("genai generate: %w", err)
	}
	return completionFromGenAI(resp), nil
}

func completionFromGenAI(resp *genai.GenerateContentResponse) Completion {
	var c Completion
	if resp == nil {
		return c
	}
	if resp.UsageMetadata != nil {
		c.ThoughtTokens = int(resp.UsageMetadata.ThoughtsTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return c
	}
	cand := resp.Candidates[0]
	c.FinishReason = string(cand.FinishReason)
	c.Truncated = cand.FinishReason == genai.FinishReasonMaxTokens
	if cand.Content == nil {
		return c
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	c.Text = sb.String()
	return c
}

// #endregion genai-model
